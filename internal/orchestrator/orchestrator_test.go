package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docsmith/internal/document"
	"github.com/local/docsmith/internal/fingerprint"
	"github.com/local/docsmith/internal/render"
	"github.com/local/docsmith/internal/statuscheck"
	"github.com/local/docsmith/internal/store"
)

type fakeQueue struct {
	mu        sync.Mutex
	payloads  [][]byte
	cancelled []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *fakeQueue) CancelJob(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, jobID)
	return nil
}

type fakeStatus struct {
	mu sync.Mutex
	m  map[string]store.RunStatus
}

func newFakeStatus() *fakeStatus { return &fakeStatus{m: make(map[string]store.RunStatus)} }

func (s *fakeStatus) Set(ctx context.Context, jobID string, st store.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[jobID] = st
	return nil
}

func (s *fakeStatus) Get(ctx context.Context, jobID string) (store.RunStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[jobID]
	return st, ok, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeQueue, *fakeStatus, *store.FSStore) {
	t.Helper()
	fs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	q := &fakeQueue{}
	st := newFakeStatus()
	o := New(Dependencies{Queue: q, Status: st, Artifacts: fs, UploadDir: t.TempDir()})
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q, st, fs
}

func putStructure(t *testing.T, fs *store.FSStore, stage store.Stage) fingerprint.ID {
	t.Helper()
	doc := &document.Document{
		Pages: []document.Page{
			{
				PageNumber: 1,
				Width:      100,
				Height:     100,
				Elements: []document.Element{
					{Type: "text", Page: 1, BBox: [4]float64{10, 10, 50, 50}, Confidence: 0.9, Content: "a"},
					{Type: "text", Page: 1, BBox: [4]float64{60, 60, 90, 90}, Confidence: 0.9, Content: "b"},
				},
			},
		},
	}
	data, err := doc.Encode()
	require.NoError(t, err)
	fp := fingerprint.ID("aaaa111122223333")
	require.NoError(t, fs.Put(context.Background(), stage, fp, data))
	return fp
}

func uploadPDF(t *testing.T, url string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "doc.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.7\nminimal"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/process", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestProcessEnqueuesJob(t *testing.T) {
	srv, q, st, _ := newTestServer(t)

	resp := uploadPDF(t, srv.URL, map[string]string{"enable_ocr": "true"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pr processResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pr))
	assert.NotEmpty(t, pr.JobID)

	require.Len(t, q.payloads, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(q.payloads[0], &payload))
	assert.Equal(t, pr.JobID, payload["job_id"])
	assert.Equal(t, true, payload["enable_ocr"])
	assert.Equal(t, "doc.pdf", payload["source_name"])
	assert.NotEmpty(t, payload["source_path"])

	status, ok, err := st.Get(context.Background(), pr.JobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "queued", status.Status)
}

func TestProcessRejectsNonPDF(t *testing.T) {
	srv, q, _, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text, not a pdf"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/process", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Empty(t, q.payloads)
}

func TestProgressEndpoint(t *testing.T) {
	srv, _, st, _ := newTestServer(t)
	require.NoError(t, st.Set(context.Background(), "job-1", store.RunStatus{
		Status: "processing", Progress: 50, Message: "content",
		Stages: map[string]string{"raw-structure": "aaaa111122223333"},
	}))

	resp, err := http.Get(srv.URL + "/progress/job-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, float64(50), body["progress"])

	resp2, err := http.Get(srv.URL + "/progress/missing")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestArtifactEndpoint(t *testing.T) {
	srv, _, _, fs := newTestServer(t)
	fp := putStructure(t, fs, store.StageRawStructure)

	resp, err := http.Get(fmt.Sprintf("%s/artifact/raw-structure/%s", srv.URL, fp))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(srv.URL + "/artifact/raw-structure/ffffffffffffffff")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/artifact/bogus-stage/" + string(fp))
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestDensityEndpoint(t *testing.T) {
	srv, _, _, fs := newTestServer(t)
	fp := putStructure(t, fs, store.StageCorrectedStructure)

	resp, err := http.Get(fmt.Sprintf("%s/density/corrected-structure/%s/1?axis=x", srv.URL, fp))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Page    int    `json:"page"`
		Axis    string `json:"axis"`
		Profile []struct {
			Coord   float64 `json:"coord"`
			Density float64 `json:"density"`
		} `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, "x", body.Axis)
	coords := make([]float64, len(body.Profile))
	for i, pt := range body.Profile {
		coords[i] = pt.Coord
	}
	assert.Equal(t, []float64{0, 10, 50, 60, 90, 100}, coords)
	assert.InDelta(t, 0.4, body.Profile[1].Density, 1e-9)

	// Unknown page.
	resp2, err := http.Get(fmt.Sprintf("%s/density/corrected-structure/%s/9", srv.URL, fp))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestRegionDensityEndpoint(t *testing.T) {
	srv, _, _, fs := newTestServer(t)
	fp := putStructure(t, fs, store.StageRawStructure)

	resp, err := http.Get(fmt.Sprintf(
		"%s/region_density/raw-structure/%s/1?x0=10&y0=0&x1=50&y1=100", srv.URL, fp))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Density float64 `json:"density"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 0.4, body.Density, 1e-9)
}

func TestDensityDiffEndpoint(t *testing.T) {
	srv, _, _, fs := newTestServer(t)
	fp := putStructure(t, fs, store.StageRawStructure)
	fp2 := putStructure(t, fs, store.StageCorrectedStructure)

	resp, err := http.Get(fmt.Sprintf(
		"%s/density_diff?from_stage=raw-structure&from=%s&to_stage=corrected-structure&to=%s&page=1&axis=x",
		srv.URL, fp, fp2))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Diff []struct {
			Coord   float64 `json:"coord"`
			Density float64 `json:"density"`
		} `json:"diff"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// Identical artifacts difference is zero everywhere.
	require.NotEmpty(t, body.Diff)
	for _, pt := range body.Diff {
		assert.InDelta(t, 0.0, pt.Density, 1e-9)
	}
}

func TestCancelJob(t *testing.T) {
	srv, q, st, _ := newTestServer(t)
	require.NoError(t, st.Set(context.Background(), "job-9", store.RunStatus{Status: "processing"}))

	body, _ := json.Marshal(map[string]string{"job_id": "job-9", "reason": "user request"})
	resp, err := http.Post(srv.URL+"/webhook/cancel_job", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"job-9"}, q.cancelled)
	status, ok, _ := st.Get(context.Background(), "job-9")
	require.True(t, ok)
	assert.Equal(t, "cancelled", status.Status)
	assert.Contains(t, status.Message, "user request")
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

func TestStatusEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	// Without a checker the endpoint is explicit about it.
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	fs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	checker := statuscheck.New(statuscheck.Options{Redis: okPinger{}, Artifacts: fs})
	o := New(Dependencies{Queue: &fakeQueue{}, Status: newFakeStatus(), Artifacts: fs, Health: checker})
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv2 := httptest.NewServer(mux)
	t.Cleanup(srv2.Close)

	resp, err = http.Get(srv2.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	// Extractor endpoint is unset, so overall readiness is degraded.
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var sum statuscheck.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.True(t, sum.Redis.OK)
	assert.True(t, sum.Artifacts.OK)
	assert.False(t, sum.Extractor.OK)
}

func TestCheckEndpoint(t *testing.T) {
	srv, _, _, fs := newTestServer(t)

	fp := fingerprint.ID("bbbb222233334444")
	qmd := []byte("---\ntitle: \"Report\"\nformat: html\n---\n\n# Report\n\nBody text \n")
	require.NoError(t, fs.Put(context.Background(), store.StageRendered, fp, qmd))

	resp, err := http.Get(srv.URL + "/check/" + string(fp))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Fingerprint string        `json:"fingerprint"`
		Clean       bool          `json:"clean"`
		Report      render.Report `json:"report"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, string(fp), out.Fingerprint)
	assert.False(t, out.Clean)
	assert.True(t, out.Report.FrontMatter.Present)
	require.Len(t, out.Report.Syntax.Issues, 1)
	assert.Contains(t, out.Report.Syntax.Issues[0], "trailing whitespace")

	resp, err = http.Get(srv.URL + "/check/ffff000011112222")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
