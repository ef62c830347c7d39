package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

func TestFileJournal_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 16, nil)
	require.NoError(t, err)

	want := []models.Event{
		models.Event(`{"payload":{"call_id":"c1"},"n":1}`),
		models.Event(`{"payload":{"call_id":"c1"},"n":2}`),
		models.Event(`{"payload":{"call_id":"c1"},"n":3}`),
	}
	for _, ev := range want {
		j.Write("c1", ev)
	}
	require.NoError(t, j.Close())

	got, err := ReadFile(dir, "c1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(filepath.Join(dir, "c1.log"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(raw), "\n"))

	stats := j.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, uint64(3), stats.Written)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestFileJournal_GlobalFile(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 16, nil)
	require.NoError(t, err)

	j.Write("", models.Event(`{}`))
	require.NoError(t, j.Close())

	_, err = os.Stat(filepath.Join(dir, "global.log"))
	require.NoError(t, err)

	got, err := ReadFile(dir, models.GlobalCallID)
	require.NoError(t, err)
	assert.Equal(t, []models.Event{models.Event(`{}`)}, got)
}

func TestFileJournal_AppendsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		j, err := Open(dir, 16, nil)
		require.NoError(t, err)
		j.Write("c1", models.Event(`{"a":1}`))
		require.NoError(t, j.Close())
	}

	got, err := ReadFile(dir, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileJournal_WriteFailureIsCounted(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "logs")

	j, err := Open(dir, 16, nil)
	require.NoError(t, err)

	// Replace the directory with a plain file so every append fails.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	assert.NotPanics(t, func() { j.Write("c1", models.Event(`{}`)) })
	require.NoError(t, j.Close())

	stats := j.Stats()
	assert.Equal(t, uint64(0), stats.Written)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestFileJournal_WriteAfterClose(t *testing.T) {
	j, err := Open(t.TempDir(), 16, nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.NotPanics(t, func() { j.Write("c1", models.Event(`{}`)) })
	assert.Equal(t, uint64(1), j.Stats().Failed)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		want   string
		hashed bool
	}{
		{"plain id", "abc-123", "abc-123.log", false},
		{"versioned id", "v3:abc_123.x", "v3:abc_123.x.log", false},
		{"global", "global", "global.log", false},
		{"path traversal", "../../etc/passwd", "", true},
		{"slash", "a/b", "", true},
		{"dot", ".", "", true},
		{"dotdot", "..", "", true},
		{"hidden", ".bashrc", "", true},
		{"space", "a b", "", true},
		{"too long", strings.Repeat("a", maxKeyLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FileName(tt.key)
			if tt.hashed {
				assert.True(t, strings.HasPrefix(got, "call-"), got)
				assert.True(t, strings.HasSuffix(got, ".log"), got)
				assert.NotContains(t, got, "/")
				assert.Len(t, got, len("call-")+64+len(".log"))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, FileName("a/b"), FileName("a/b"))
	assert.NotEqual(t, FileName("a/b"), FileName("a/c"))
}

func TestFileJournal_UnsafeIDStaysInDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "logs")

	j, err := Open(dir, 16, nil)
	require.NoError(t, err)
	j.Write("../escaped", models.Event(`{"x":1}`))
	require.NoError(t, j.Close())

	_, err = os.Stat(filepath.Join(parent, "escaped.log"))
	assert.True(t, os.IsNotExist(err))

	got, err := ReadFile(dir, "../escaped")
	require.NoError(t, err)
	assert.Equal(t, []models.Event{models.Event(`{"x":1}`)}, got)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(t.TempDir(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNoOp(t *testing.T) {
	var w Writer = NoOp{}
	w.Write("c1", models.Event(`{}`))
	assert.Equal(t, Stats{}, w.Stats())
	assert.NoError(t, w.Close())
}
