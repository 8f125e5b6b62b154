// Package extract is the boundary to the external document-structure
// extraction service. The service owns PDF parsing and layout analysis;
// this package only ships bytes to it and validates what comes back.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Options select the extraction behavior. They are part of the raw-stage
// fingerprint: changing an option is a different extraction.
type Options struct {
	EnableOCR   bool   `json:"enable_ocr"`
	LayoutModel string `json:"layout_model"`
}

// Extractor converts a source document into the structure-stage JSON
// schema. Implementations must be deterministic for a given (source,
// options) pair.
type Extractor interface {
	Extract(ctx context.Context, source []byte, opts Options) ([]byte, error)
}

// UnsupportedSourceError reports a source rejected before extraction.
type UnsupportedSourceError struct {
	Detected string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported source type %q, expected application/pdf", e.Detected)
}

// ValidateSource checks the magic bytes of an uploaded source. Filenames
// lie; content does not.
func ValidateSource(data []byte) error {
	mtype := mimetype.Detect(data)
	if !mtype.Is("application/pdf") {
		return &UnsupportedSourceError{Detected: mtype.String()}
	}
	return nil
}

// Guard gates calls to the extraction service. Acquire reserves a call
// slot or refuses while the service is cooling down after failures.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
	ReportFailure(ctx context.Context)
	ReportSuccess(ctx context.Context)
}

// HTTPExtractor calls an extraction service over HTTP: the source bytes go
// in the request body, the options in the query string, and the structure
// JSON comes back in the response body.
type HTTPExtractor struct {
	endpoint string
	client   *http.Client
	guard    Guard
}

func NewHTTPExtractor(endpoint string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPExtractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// SetGuard installs an optional call guard. Without one every call goes
// straight through.
func (e *HTTPExtractor) SetGuard(g Guard) { e.guard = g }

func (e *HTTPExtractor) Extract(ctx context.Context, source []byte, opts Options) ([]byte, error) {
	if e.guard != nil {
		release, err := e.guard.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("extraction unavailable: %w", err)
		}
		defer release()
	}
	q := url.Values{}
	q.Set("enable_ocr", strconv.FormatBool(opts.EnableOCR))
	if opts.LayoutModel != "" {
		q.Set("layout_model", opts.LayoutModel)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"?"+q.Encode(), bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		e.reportFailure(ctx)
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// Only server-side trouble counts against the cooldown; a 4xx
		// means this particular request was bad.
		if resp.StatusCode >= http.StatusInternalServerError {
			e.reportFailure(ctx)
		}
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, msg)
	}
	if e.guard != nil {
		e.guard.ReportSuccess(ctx)
	}

	log.Debug().
		Int("source_bytes", len(source)).
		Int("structure_bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("extraction completed")
	return body, nil
}

func (e *HTTPExtractor) reportFailure(ctx context.Context) {
	if e.guard != nil {
		e.guard.ReportFailure(ctx)
	}
}
