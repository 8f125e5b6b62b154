// Package pipeline drives the four processing stages over the artifact
// cache: raw structure extraction, structure correction, content
// extraction and rendering. Each stage is keyed by a fingerprint of its
// inputs; stages whose key is already stored are skipped, so editing the
// correction script reuses the cached raw structure and only replays the
// stages after it.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsmith/internal/document"
	"github.com/local/docsmith/internal/extract"
	"github.com/local/docsmith/internal/fingerprint"
	"github.com/local/docsmith/internal/metrics"
	"github.com/local/docsmith/internal/render"
	"github.com/local/docsmith/internal/store"
	"github.com/local/docsmith/internal/transform"
)

// Options select the behavior of one run.
type Options struct {
	// SourceName is the original file name, recorded in artifact metadata.
	SourceName string
	// Extract configures the extraction service call and is part of the
	// raw-stage fingerprint.
	Extract extract.Options
	// ForceRefresh recomputes every stage, overwriting nothing: results are
	// still stored under their fingerprints, which by determinism hold the
	// same bytes.
	ForceRefresh bool
	// Observer, when set, is called after every stage of this run
	// completes. It does not participate in any fingerprint.
	Observer func(StageRun)
}

// StageRun describes the outcome of one stage within a run.
type StageRun struct {
	Stage       store.Stage    `json:"stage"`
	Fingerprint fingerprint.ID `json:"fingerprint"`
	CacheHit    bool           `json:"cache_hit"`
	Duration    time.Duration  `json:"duration"`
}

// Result summarizes a completed run. Stages lists every stage in order
// with the fingerprint its artifact lives under.
type Result struct {
	SourceChecksum string         `json:"source_checksum"`
	Stages         []StageRun     `json:"stages"`
	Final          fingerprint.ID `json:"final"`
}

// Dependencies wires the runner's collaborators. Content and Rendering
// default to the built-in transforms when left nil.
type Dependencies struct {
	Store       store.Store
	Extractor   extract.Extractor
	Corrections *transform.Loader
	Content     transform.Transform
	Rendering   transform.Transform
}

// Runner executes pipeline runs against a shared store. It is safe for
// concurrent use; concurrent runs needing the same (stage, fingerprint)
// compute it once and share the result.
type Runner struct {
	deps Dependencies

	mu       sync.Mutex
	inflight map[inflightKey]*inflightCall
}

type inflightKey struct {
	stage store.Stage
	fp    fingerprint.ID
}

type inflightCall struct {
	done chan struct{}
	data []byte
	err  error
}

// New validates the dependencies and fills in the default transforms.
func New(deps Dependencies) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline: nil store")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("pipeline: nil extractor")
	}
	if deps.Content == nil {
		deps.Content = transform.ContentExtraction()
	}
	if deps.Rendering == nil {
		deps.Rendering = render.QMD()
	}
	return &Runner{deps: deps, inflight: make(map[inflightKey]*inflightCall)}, nil
}

// Run processes one source document through all four stages. A stage
// failure stops the run; artifacts of the stages that completed stay
// cached and a later run resumes from them.
func (r *Runner) Run(ctx context.Context, source []byte, opts Options) (*Result, error) {
	checksum := fingerprint.Checksum(source)
	res := &Result{SourceChecksum: checksum}
	st := &runState{res: res, force: opts.ForceRefresh, observer: opts.Observer}

	// Stage 1: raw structure.
	fpRaw, err := fingerprint.Compute(
		fingerprint.String("source-checksum", checksum),
		fingerprint.Value("extract-options", opts.Extract),
	)
	if err != nil {
		return nil, err
	}
	raw, err := r.runStage(ctx, st, store.StageRawStructure, fpRaw, func(ctx context.Context) ([]byte, error) {
		return r.extractRaw(ctx, source, checksum, opts)
	})
	if err != nil {
		return nil, err
	}

	// Stage 2: corrected structure. Without a script the stage passes the
	// raw artifact through under the same fingerprint.
	script, err := r.deps.Corrections.Load()
	if err != nil {
		return nil, err
	}
	fpCorrected := fpRaw
	correct := func(ctx context.Context) ([]byte, error) { return raw, nil }
	if script != nil {
		fpCorrected, err = fingerprint.Compute(
			fingerprint.Bytes("input", raw),
			fingerprint.Bytes("transform", script.Source()),
		)
		if err != nil {
			return nil, err
		}
		correct = func(ctx context.Context) ([]byte, error) {
			return transform.Invoke(ctx, script, raw)
		}
	}
	corrected, err := r.runStage(ctx, st, store.StageCorrectedStructure, fpCorrected, correct)
	if err != nil {
		return nil, err
	}

	// Stage 3: content.
	fpContent, err := fingerprint.Compute(
		fingerprint.Bytes("input", corrected),
		fingerprint.Bytes("transform", r.deps.Content.Source()),
	)
	if err != nil {
		return nil, err
	}
	content, err := r.runStage(ctx, st, store.StageContent, fpContent, func(ctx context.Context) ([]byte, error) {
		return transform.Invoke(ctx, r.deps.Content, corrected)
	})
	if err != nil {
		return nil, err
	}

	// Stage 4: rendered document.
	fpRendered, err := fingerprint.Compute(
		fingerprint.Bytes("input", content),
		fingerprint.Bytes("transform", r.deps.Rendering.Source()),
	)
	if err != nil {
		return nil, err
	}
	rendered, err := r.runStage(ctx, st, store.StageRendered, fpRendered, func(ctx context.Context) ([]byte, error) {
		return transform.Invoke(ctx, r.deps.Rendering, content)
	})
	if err != nil {
		return nil, err
	}

	// Quality checks never fail the run; a defective rendering is still
	// the deterministic rendering of its inputs.
	if report := render.Check(rendered); !report.Clean() {
		log.Warn().
			Str("fingerprint", string(fpRendered)).
			Int("issues", len(report.Issues)).
			Strs("first_issues", head(report.Issues, 3)).
			Msg("rendered document failed quality checks")
	}

	res.Final = fpRendered
	return res, nil
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// extractRaw calls the extraction service and normalizes its output:
// provenance metadata is stamped, the structure summary rebuilt and the
// per-page density and margin annotations computed.
func (r *Runner) extractRaw(ctx context.Context, source []byte, checksum string, opts Options) ([]byte, error) {
	rawJSON, err := r.deps.Extractor.Extract(ctx, source, opts.Extract)
	if err != nil {
		return nil, fmt.Errorf("extract structure: %w", err)
	}
	doc, err := document.Decode(rawJSON)
	if err != nil {
		return nil, fmt.Errorf("extraction output: %w", err)
	}
	doc.Metadata.Source = opts.SourceName
	doc.Metadata.Checksum = checksum
	doc.Metadata.LayoutModel = opts.Extract.LayoutModel
	doc.Metadata.OCREnabled = opts.Extract.EnableOCR
	doc.RebuildStructure()
	if err := doc.AnnotateDensity(); err != nil {
		return nil, fmt.Errorf("annotate structure: %w", err)
	}
	return doc.Encode()
}

// runState carries the per-run bookkeeping through the stages.
type runState struct {
	res      *Result
	force    bool
	observer func(StageRun)
}

func (st *runState) observe(run StageRun) {
	st.res.Stages = append(st.res.Stages, run)
	if st.observer != nil {
		st.observer(run)
	}
}

// runStage materializes one stage artifact: cache lookup, inflight
// deduplication, computation, persistence. Store read failures are
// surfaced, never treated as a miss.
func (r *Runner) runStage(ctx context.Context, st *runState, stage store.Stage, fp fingerprint.ID, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()

	if !st.force {
		data, ok, err := r.deps.Store.Get(ctx, stage, fp)
		if err != nil {
			metrics.StageRun(string(stage), "error")
			return nil, err
		}
		if ok {
			st.observe(StageRun{Stage: stage, Fingerprint: fp, CacheHit: true, Duration: time.Since(start)})
			metrics.StageRun(string(stage), "hit")
			log.Debug().Str("stage", string(stage)).Str("fingerprint", string(fp)).Msg("stage cache hit")
			return data, nil
		}
	}

	data, err := r.compute(ctx, stage, fp, compute)
	took := time.Since(start)
	if err != nil {
		metrics.StageRun(string(stage), "error")
		log.Error().Err(err).Str("stage", string(stage)).Str("fingerprint", string(fp)).Msg("stage failed")
		return nil, err
	}
	st.observe(StageRun{Stage: stage, Fingerprint: fp, CacheHit: false, Duration: took})
	metrics.StageRun(string(stage), "miss")
	metrics.StageDuration(string(stage), took.Seconds())
	log.Info().Str("stage", string(stage)).Str("fingerprint", string(fp)).Dur("took", took).Msg("stage computed")
	return data, nil
}

// compute runs the stage function once per (stage, fingerprint) across all
// concurrent runs, persisting the result before other waiters are released.
func (r *Runner) compute(ctx context.Context, stage store.Stage, fp fingerprint.ID, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	key := inflightKey{stage: stage, fp: fp}

	r.mu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.data, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
		close(call.done)
	}()

	start := time.Now()
	data, err := fn(ctx)
	if err == nil {
		err = r.persist(ctx, stage, fp, data, time.Since(start))
	}
	call.data, call.err = data, err
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Runner) persist(ctx context.Context, stage store.Stage, fp fingerprint.ID, data []byte, took time.Duration) error {
	if err := r.deps.Store.Put(ctx, stage, fp, data); err != nil {
		metrics.StoreError("put")
		return err
	}
	logText := fmt.Sprintf("stage=%s fingerprint=%s bytes=%d took=%s at=%s\n",
		stage, fp, len(data), took, time.Now().UTC().Format(time.RFC3339))
	if err := r.deps.Store.PutLog(ctx, stage, fp, []byte(logText)); err != nil {
		// The artifact is safely stored; a lost log only hurts diagnostics.
		metrics.StoreError("putlog")
		log.Warn().Err(err).Str("stage", string(stage)).Msg("failed to store stage log")
	}
	return nil
}
