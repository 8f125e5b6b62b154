// Package dispatcher runs the pipeline worker pool: it pulls jobs from the
// queue, executes the pipeline and keeps the job status current.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsmith/internal/extract"
	"github.com/local/docsmith/internal/metrics"
	"github.com/local/docsmith/internal/pipeline"
	"github.com/local/docsmith/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	Depth(ctx context.Context) (int64, error)
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.RunStatus) error
	Get(ctx context.Context, jobID string) (store.RunStatus, bool, error)
	SetStage(ctx context.Context, jobID, stage, fp string) error
}

// Job is the queue payload produced by the orchestrator.
type Job struct {
	JobID        string `json:"job_id"`
	SourcePath   string `json:"source_path"`
	SourceName   string `json:"source_name"`
	EnableOCR    bool   `json:"enable_ocr"`
	LayoutModel  string `json:"layout_model"`
	ForceRefresh bool   `json:"force_refresh"`
}

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
}

// Worker is the pool of pipeline executors.
type Worker struct {
	cfg    Config
	q      Queue
	status StatusStore
	runner *pipeline.Runner
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, q Queue, status StatusStore, runner *pipeline.Runner) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	return &Worker{cfg: cfg, q: q, status: status, runner: runner, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs to finish or the
// context to expire.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Int("worker", id).Msg("pipeline worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("pipeline worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}
		if depth, err := w.q.Depth(context.Background()); err == nil {
			metrics.SetQueueDepth(depth)
		}

		var job Job
		if err := json.Unmarshal(data, &job); err != nil || job.JobID == "" {
			log.Error().Err(err).Str("msg_id", msgID).Msg("malformed job payload, discarding")
			_ = w.q.Ack(context.Background(), msgID)
			continue
		}
		w.process(job)
		_ = w.q.Ack(context.Background(), msgID)
	}
}

func (w *Worker) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()

	if cancelled, _ := w.q.IsCancelled(ctx, job.JobID); cancelled {
		log.Warn().Str("job_id", job.JobID).Msg("job cancelled before processing, skipping")
		w.finish(job.JobID, "cancelled", "cancelled before processing")
		metrics.JobProcessed("cancelled")
		return
	}

	source, err := os.ReadFile(job.SourcePath)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Str("path", job.SourcePath).Msg("cannot read source")
		w.finish(job.JobID, "failed", fmt.Sprintf("cannot read source: %v", err))
		metrics.JobProcessed("failed")
		return
	}

	start := time.Now()
	_ = w.status.Set(ctx, job.JobID, store.RunStatus{
		Status: "processing", Progress: 5, Message: "started", Start: &start,
	})

	stagesDone := 0
	observer := func(run pipeline.StageRun) {
		stagesDone++
		_ = w.status.SetStage(ctx, job.JobID, string(run.Stage), string(run.Fingerprint))
		_ = w.status.Set(ctx, job.JobID, store.RunStatus{
			Status:   "processing",
			Progress: 5 + stagesDone*90/len(store.Stages()),
			Message:  fmt.Sprintf("%s done", run.Stage),
			Start:    &start,
		})
	}

	res, err := w.runner.Run(ctx, source, pipeline.Options{
		SourceName:   job.SourceName,
		Extract:      extract.Options{EnableOCR: job.EnableOCR, LayoutModel: job.LayoutModel},
		ForceRefresh: job.ForceRefresh,
		Observer:     observer,
	})
	if err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("pipeline run failed")
		w.finish(job.JobID, "failed", err.Error())
		metrics.JobProcessed("failed")
		return
	}

	w.finish(job.JobID, "success", fmt.Sprintf("rendered %s", res.Final))
	metrics.JobProcessed("success")
	log.Info().
		Str("job_id", job.JobID).
		Str("final", string(res.Final)).
		Dur("took", time.Since(start)).
		Msg("job completed")

	// The upload served its purpose; artifacts are content addressed.
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", job.SourcePath).Msg("cannot remove processed upload")
	}
}

// finish updates the terminal status, preserving stage fingerprints
// already recorded.
func (w *Worker) finish(jobID, status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, ok, _ := w.status.Get(ctx, jobID)
	if !ok {
		st = store.RunStatus{}
	}
	now := time.Now()
	st.Status = status
	st.Message = message
	st.End = &now
	if status == "success" {
		st.Progress = 100
	}
	_ = w.status.Set(ctx, jobID, st)
}
