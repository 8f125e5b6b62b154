// Package orchestrator exposes the HTTP surface of the service: job
// submission, progress, artifact retrieval and the density query
// endpoints. Pipeline execution itself happens in the dispatcher workers;
// the orchestrator only validates, enqueues and reads.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/docsmith/internal/document"
	"github.com/local/docsmith/internal/extract"
	"github.com/local/docsmith/internal/fingerprint"
	"github.com/local/docsmith/internal/geometry"
	"github.com/local/docsmith/internal/render"
	"github.com/local/docsmith/internal/statuscheck"
	"github.com/local/docsmith/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.RunStatus) error
	Get(ctx context.Context, jobID string) (store.RunStatus, bool, error)
}

type Dependencies struct {
	Queue     Queue
	Status    StatusStore
	Artifacts store.Store
	Health    *statuscheck.Checker
	UploadDir string
	Extract   extract.Options
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.UploadDir == "" {
		deps.UploadDir = "uploads"
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", o.handleStatus)
	mux.HandleFunc("/process", o.handleProcess)
	mux.HandleFunc("/progress/", o.handleProgress)
	mux.HandleFunc("/artifact/", o.handleArtifact)
	mux.HandleFunc("/check/", o.handleCheck)
	mux.HandleFunc("/density/", o.handleDensity)
	mux.HandleFunc("/region_density/", o.handleRegionDensity)
	mux.HandleFunc("/density_diff", o.handleDensityDiff)
	mux.HandleFunc("/webhook/cancel_job", o.handleCancelJob)
}

// handleStatus reports dependency readiness, as opposed to /health which
// only says the process is alive.
func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Health == nil {
		http.Error(w, "status checks not configured", http.StatusNotImplemented)
		return
	}
	sum := o.deps.Health.Summary(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !sum.Redis.OK || !sum.Artifacts.OK || !sum.Extractor.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(sum)
}

type processResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// handleProcess accepts a multipart upload and enqueues a pipeline job.
func (o *Orchestrator) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	source, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	if err := extract.ValidateSource(source); err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	opts := o.deps.Extract
	if v := r.FormValue("enable_ocr"); v != "" {
		opts.EnableOCR = v == "on" || v == "true"
	}
	if v := r.FormValue("layout_model"); v != "" {
		opts.LayoutModel = v
	}
	forceRefresh := r.FormValue("force_refresh") == "true"

	jobID := uuid.NewString()
	name := hdr.Filename
	if name == "" {
		name = "upload.pdf"
	}
	if err := os.MkdirAll(o.deps.UploadDir, 0o755); err != nil {
		http.Error(w, "cannot create upload dir", http.StatusInternalServerError)
		return
	}
	localPath := filepath.Join(o.deps.UploadDir, fmt.Sprintf("%s_%s", jobID, filepath.Base(name)))
	if err := os.WriteFile(localPath, source, 0o644); err != nil {
		http.Error(w, "cannot save upload", http.StatusInternalServerError)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"job_id":        jobID,
		"source_path":   localPath,
		"source_name":   name,
		"enable_ocr":    opts.EnableOCR,
		"layout_model":  opts.LayoutModel,
		"force_refresh": forceRefresh,
	})
	if err := o.deps.Queue.Enqueue(r.Context(), payload); err != nil {
		log.Error().Err(err).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	_ = o.deps.Status.Set(r.Context(), jobID, store.RunStatus{
		Status: "queued", Progress: 0, Message: "queued", Start: &start,
	})
	log.Info().Str("job_id", jobID).Str("source", name).Int("bytes", len(source)).Msg("job created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(processResp{Status: "ok", JobID: jobID, Message: "processing job created"})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    st.Status == "success",
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"stages":     st.Stages,
		"start_time": st.Start,
		"end_time":   st.End,
	})
}

// handleArtifact serves /artifact/{stage}/{fingerprint}.
func (o *Orchestrator) handleArtifact(w http.ResponseWriter, r *http.Request) {
	stage, fp, rest, ok := parseStageFP(strings.TrimPrefix(r.URL.Path, "/artifact/"))
	if !ok || rest != "" {
		http.Error(w, "expected /artifact/{stage}/{fingerprint}", http.StatusBadRequest)
		return
	}
	data, found, err := o.deps.Artifacts.Get(r.Context(), stage, fp)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if stage == store.StageRendered {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	_, _ = w.Write(data)
}

// handleCheck serves /check/{fingerprint}: quality checks over a
// rendered-document artifact.
func (o *Orchestrator) handleCheck(w http.ResponseWriter, r *http.Request) {
	fp := fingerprint.ID(strings.TrimPrefix(r.URL.Path, "/check/"))
	if fp == "" || strings.Contains(string(fp), "/") {
		http.Error(w, "expected /check/{fingerprint}", http.StatusBadRequest)
		return
	}
	data, found, err := o.deps.Artifacts.Get(r.Context(), store.StageRendered, fp)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	report := render.Check(data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"fingerprint": fp,
		"clean":       report.Clean(),
		"report":      report,
	})
}

// handleDensity serves /density/{stage}/{fingerprint}/{page}?axis=x|y.
// Profiles are recomputed from the artifact's elements on every request.
func (o *Orchestrator) handleDensity(w http.ResponseWriter, r *http.Request) {
	stage, fp, rest, ok := parseStageFP(strings.TrimPrefix(r.URL.Path, "/density/"))
	if !ok || rest == "" {
		http.Error(w, "expected /density/{stage}/{fingerprint}/{page}", http.StatusBadRequest)
		return
	}
	pageNum, err := strconv.Atoi(rest)
	if err != nil {
		http.Error(w, "invalid page number", http.StatusBadRequest)
		return
	}
	axis := geometry.AxisX
	if a := r.URL.Query().Get("axis"); a == "y" {
		axis = geometry.AxisY
	} else if a != "" && a != "x" {
		http.Error(w, "axis must be x or y", http.StatusBadRequest)
		return
	}

	page, ok := o.loadPage(w, r, stage, fp, pageNum)
	if !ok {
		return
	}
	profile, err := geometry.AxisDensity(page.Geometry(), axis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"fingerprint": fp,
		"page":        pageNum,
		"axis":        axis.String(),
		"profile":     profile,
		"margins":     page.Margins,
	})
}

// handleRegionDensity serves
// /region_density/{stage}/{fingerprint}/{page}?x0=&y0=&x1=&y1=.
func (o *Orchestrator) handleRegionDensity(w http.ResponseWriter, r *http.Request) {
	stage, fp, rest, ok := parseStageFP(strings.TrimPrefix(r.URL.Path, "/region_density/"))
	if !ok || rest == "" {
		http.Error(w, "expected /region_density/{stage}/{fingerprint}/{page}", http.StatusBadRequest)
		return
	}
	pageNum, err := strconv.Atoi(rest)
	if err != nil {
		http.Error(w, "invalid page number", http.StatusBadRequest)
		return
	}
	var rect geometry.Rect
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"x0", &rect.X0}, {"y0", &rect.Y0}, {"x1", &rect.X1}, {"y1", &rect.Y1}} {
		v, err := strconv.ParseFloat(r.URL.Query().Get(f.name), 64)
		if err != nil {
			http.Error(w, "missing or invalid "+f.name, http.StatusBadRequest)
			return
		}
		*f.dst = v
	}

	page, ok := o.loadPage(w, r, stage, fp, pageNum)
	if !ok {
		return
	}
	density, err := geometry.RegionDensity(page.Geometry(), rect)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"fingerprint": fp,
		"page":        pageNum,
		"region":      rect,
		"density":     density,
	})
}

// handleDensityDiff compares a page's profile between two artifacts,
// typically raw versus corrected structure:
// /density_diff?from_stage=&from=&to_stage=&to=&page=&axis=.
func (o *Orchestrator) handleDensityDiff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStage, toStage := store.Stage(q.Get("from_stage")), store.Stage(q.Get("to_stage"))
	fromFP, toFP := fingerprint.ID(q.Get("from")), fingerprint.ID(q.Get("to"))
	if !fromStage.Valid() || !toStage.Valid() || fromFP == "" || toFP == "" {
		http.Error(w, "missing from_stage/from/to_stage/to", http.StatusBadRequest)
		return
	}
	pageNum, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		http.Error(w, "invalid page number", http.StatusBadRequest)
		return
	}
	axis := geometry.AxisX
	if q.Get("axis") == "y" {
		axis = geometry.AxisY
	}

	from, ok := o.loadPage(w, r, fromStage, fromFP, pageNum)
	if !ok {
		return
	}
	to, ok := o.loadPage(w, r, toStage, toFP, pageNum)
	if !ok {
		return
	}
	fromProfile, err := geometry.AxisDensity(from.Geometry(), axis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	toProfile, err := geometry.AxisDensity(to.Geometry(), axis)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"page": pageNum,
		"axis": axis.String(),
		"diff": geometry.ProfileDifference(toProfile, fromProfile),
	})
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st, ok, _ := o.deps.Status.Get(r.Context(), req.JobID)
	if !ok {
		st = store.RunStatus{}
	}
	st.Status = "cancelled"
	if req.Reason != "" {
		st.Message = fmt.Sprintf("cancelled: %s", req.Reason)
	} else {
		st.Message = "cancelled"
	}
	now := time.Now()
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), req.JobID, st)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": req.JobID, "status": "cancelled"})
}

// loadPage fetches a structure artifact and picks one page, writing the
// HTTP error itself when something goes wrong.
func (o *Orchestrator) loadPage(w http.ResponseWriter, r *http.Request, stage store.Stage, fp fingerprint.ID, pageNum int) (*document.Page, bool) {
	if stage == store.StageRendered || stage == store.StageContent {
		http.Error(w, "density queries require a structure stage", http.StatusBadRequest)
		return nil, false
	}
	data, found, err := o.deps.Artifacts.Get(r.Context(), stage, fp)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return nil, false
	}
	if !found {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return nil, false
	}
	doc, err := document.Decode(data)
	if err != nil {
		http.Error(w, "artifact is not a structure document", http.StatusUnprocessableEntity)
		return nil, false
	}
	for i := range doc.Pages {
		if doc.Pages[i].PageNumber == pageNum {
			return &doc.Pages[i], true
		}
	}
	http.Error(w, "page not found", http.StatusNotFound)
	return nil, false
}

// parseStageFP splits "{stage}/{fingerprint}" and an optional trailing
// path segment.
func parseStageFP(path string) (store.Stage, fingerprint.ID, string, bool) {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	stage := store.Stage(parts[0])
	if !stage.Valid() || parts[1] == "" {
		return "", "", "", false
	}
	rest := ""
	if len(parts) == 3 {
		rest = parts[2]
	}
	return stage, fingerprint.ID(parts[1]), rest, true
}
