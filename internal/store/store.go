// Package store persists stage artifacts under content-addressed keys.
// A fingerprint fully determines an artifact: once written, the bytes for a
// (stage, fingerprint) pair never change, so writes are idempotent and
// reads never need invalidation.
package store

import (
	"context"
	"fmt"

	"github.com/local/docsmith/internal/fingerprint"
)

// Stage identifies one step of the processing pipeline.
type Stage string

const (
	StageRawStructure       Stage = "raw-structure"
	StageCorrectedStructure Stage = "corrected-structure"
	StageContent            Stage = "content"
	StageRendered           Stage = "rendered-document"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageRawStructure, StageCorrectedStructure, StageContent, StageRendered}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageRawStructure, StageCorrectedStructure, StageContent, StageRendered:
		return true
	}
	return false
}

// Ext returns the artifact file extension for the stage.
func (s Stage) Ext() string {
	if s == StageRendered {
		return "qmd"
	}
	return "json"
}

func (s Stage) String() string { return string(s) }

// Store is the artifact cache shared by all pipeline runs.
//
// Get returns the artifact bytes and true on a hit, or false when nothing
// has been stored under the key. Put is idempotent: writing the same key
// twice is a no-op, and concurrent writers of the same key never corrupt
// the stored artifact. PutLog stores a human-readable run log next to the
// artifact without affecting cache semantics.
type Store interface {
	Get(ctx context.Context, stage Stage, fp fingerprint.ID) ([]byte, bool, error)
	Put(ctx context.Context, stage Stage, fp fingerprint.ID, data []byte) error
	PutLog(ctx context.Context, stage Stage, fp fingerprint.ID, log []byte) error
}

// IOError reports a storage failure. It is distinct from a cache miss:
// callers must never treat a failed read as "not cached".
type IOError struct {
	Op          string
	Stage       Stage
	Fingerprint fingerprint.ID
	Cause       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store: %s %s/%s: %v", e.Op, e.Stage, e.Fingerprint, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }
