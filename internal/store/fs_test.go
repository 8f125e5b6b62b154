package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docsmith/internal/fingerprint"
)

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFSStoreMissThenHit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fp := fingerprint.ID("0123456789abcdef")

	_, ok, err := s.Get(ctx, StageRawStructure, fp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, StageRawStructure, fp, []byte(`{"pages":[]}`)))

	data, ok, err := s.Get(ctx, StageRawStructure, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"pages":[]}`), data)
}

func TestFSStorePutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fp := fingerprint.ID("0123456789abcdef")

	require.NoError(t, s.Put(ctx, StageContent, fp, []byte("first")))
	// Second write with different bytes must not change the stored artifact.
	require.NoError(t, s.Put(ctx, StageContent, fp, []byte("second")))

	data, ok, err := s.Get(ctx, StageContent, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), data)
}

func TestFSStoreLayout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fp := fingerprint.ID("feedfacefeedface")

	require.NoError(t, s.Put(ctx, StageRendered, fp, []byte("---\n")))
	require.NoError(t, s.PutLog(ctx, StageRendered, fp, []byte("rendered ok\n")))

	_, err := os.Stat(filepath.Join(s.Root(), "rendered-document", "feedfacefeedface.qmd"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.Root(), "logs", "rendered-document_feedfacefeedface.log"))
	require.NoError(t, err)

	// JSON stages use the json extension.
	require.NoError(t, s.Put(ctx, StageCorrectedStructure, fp, []byte("{}")))
	_, err = os.Stat(filepath.Join(s.Root(), "corrected-structure", "feedfacefeedface.json"))
	require.NoError(t, err)
}

func TestFSStoreNoPartialArtifacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, StageRawStructure, "aaaabbbbccccdddd", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(s.Root(), string(StageRawStructure)))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files must not survive a write")
	}
}

func TestFSStoreContextCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, StageRawStructure, "aaaabbbbccccdddd", []byte("x"))
	require.Error(t, err)
	_, _, err = s.Get(ctx, StageRawStructure, "aaaabbbbccccdddd")
	require.Error(t, err)
}

func TestStageExtAndValid(t *testing.T) {
	assert.Equal(t, "json", StageRawStructure.Ext())
	assert.Equal(t, "json", StageContent.Ext())
	assert.Equal(t, "qmd", StageRendered.Ext())

	for _, st := range Stages() {
		assert.True(t, st.Valid())
	}
	assert.False(t, Stage("bogus").Valid())
}
