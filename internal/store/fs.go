package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/local/docsmith/internal/fingerprint"
	"github.com/rs/zerolog/log"
)

// FSStore keeps artifacts on the local filesystem under
// <root>/<stage>/<fingerprint>.<ext>, with run logs under <root>/logs/.
// Writes go through a temp file and an atomic rename, so readers and
// concurrent writers only ever observe complete artifacts.
type FSStore struct {
	root string
}

// NewFSStore creates the cache root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("fs store: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: create root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the cache root directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) artifactPath(stage Stage, fp fingerprint.ID) string {
	return filepath.Join(s.root, string(stage), fmt.Sprintf("%s.%s", fp, stage.Ext()))
}

func (s *FSStore) logPath(stage Stage, fp fingerprint.ID) string {
	return filepath.Join(s.root, "logs", fmt.Sprintf("%s_%s.log", stage, fp))
}

// Get reads the artifact for (stage, fp). A missing file is a miss, not an
// error.
func (s *FSStore) Get(ctx context.Context, stage Stage, fp fingerprint.ID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.artifactPath(stage, fp))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &IOError{Op: "get", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return data, true, nil
}

// Put writes the artifact atomically. If the key already exists the call is
// a no-op; the first write wins and the stored bytes never change.
func (s *FSStore) Put(ctx context.Context, stage Stage, fp fingerprint.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.artifactPath(stage, fp)
	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("stage", string(stage)).Str("fingerprint", string(fp)).Msg("artifact already cached, skipping write")
		return nil
	}
	if err := s.writeAtomic(path, data); err != nil {
		return &IOError{Op: "put", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return nil
}

// PutLog writes the run log sidecar. Logs are diagnostic and overwrite on
// re-run.
func (s *FSStore) PutLog(ctx context.Context, stage Stage, fp fingerprint.ID, logData []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeAtomic(s.logPath(stage, fp), logData); err != nil {
		return &IOError{Op: "putlog", Stage: stage, Fingerprint: fp, Cause: err}
	}
	return nil
}

func (s *FSStore) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
