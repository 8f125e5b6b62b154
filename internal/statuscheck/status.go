// Package statuscheck probes the external dependencies of the service:
// the Redis queue, the artifact store and the structure extraction
// service.
package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/local/docsmith/internal/fingerprint"
	"github.com/local/docsmith/internal/store"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the service's dependencies.
type Checker struct {
	redis      RedisPinger
	artifacts  store.Store
	extractor  string
	httpClient *http.Client
}

// Options configures the Checker.
type Options struct {
	Redis             RedisPinger
	Artifacts         store.Store
	ExtractorEndpoint string
	HTTPClient        *http.Client
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	Artifacts Status `json:"artifacts"`
	Extractor Status `json:"extractor"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Checker{
		redis:      opts.Redis,
		artifacts:  opts.Artifacts,
		extractor:  opts.ExtractorEndpoint,
		httpClient: client,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		Artifacts: c.checkArtifacts(ctx),
		Extractor: c.checkExtractor(ctx),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkArtifacts issues a read for a fingerprint that cannot exist. A
// clean miss proves the backend is reachable and readable; only a
// transport or permission failure comes back as an error.
func (c *Checker) checkArtifacts(ctx context.Context) Status {
	if c.artifacts == nil {
		return Status{OK: false, Message: "store unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	probe := fingerprint.ID("0000000000000000")
	if _, _, err := c.artifacts.Get(ctx, store.StageRawStructure, probe); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Reachable"}
}

// checkExtractor only tests reachability. The extraction endpoint is
// POST-only, so any HTTP response at all means the service is up.
func (c *Checker) checkExtractor(ctx context.Context) Status {
	if c.extractor == "" {
		return Status{OK: false, Message: "Endpoint not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.extractor, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Reachable"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
