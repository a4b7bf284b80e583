package dirty

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTracker_Changed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := writeFile(t, dir, "f.ll", "define void @f() {\n  ret void\n}\n")

	tracker := New(filepath.Join(dir, "state", DefaultStateFile))

	changed, err := tracker.Changed(ctx, file)
	require.NoError(t, err)
	assert.True(t, changed, "an untracked file is changed")

	require.NoError(t, tracker.Record(file))
	changed, err = tracker.Changed(ctx, file)
	require.NoError(t, err)
	assert.False(t, changed)

	writeFile(t, dir, "f.ll", "define void @f() {\n  unreachable\n}\n")
	changed, err = tracker.Changed(ctx, file)
	require.NoError(t, err)
	assert.True(t, changed)

	tracker.Forget(file)
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_Changed_Errors(t *testing.T) {
	tracker := New(filepath.Join(t.TempDir(), DefaultStateFile))

	_, err := tracker.Changed(context.Background(), "/non/existent/file.go")
	assert.Error(t, err)
	assert.Error(t, tracker.Record("/non/existent/file.go"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tracker.Changed(ctx, "/non/existent/file.go")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTracker_SaveOpen(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a")
	b := writeFile(t, dir, "b.go", "package b")
	statePath := filepath.Join(dir, "cache", DefaultStateFile)

	tracker := New(statePath)
	require.NoError(t, tracker.Record(b))
	require.NoError(t, tracker.Record(a))
	require.NoError(t, tracker.Save())

	loaded, err := Open(statePath)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, loaded.Files())

	changed, err := loaded.Changed(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOpen(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		tracker, err := Open(filepath.Join(t.TempDir(), DefaultStateFile))
		require.NoError(t, err)
		assert.Equal(t, 0, tracker.Len())
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), DefaultStateFile, "\xc1")
		tracker, err := Open(path)
		assert.Error(t, err)
		require.NotNil(t, tracker)
		assert.Equal(t, 0, tracker.Len())
	})
}

func TestTracker_LoadFrom_OtherVersion(t *testing.T) {
	var buf bytes.Buffer
	err := msgpack.NewEncoder(&buf).Encode(&stateData{
		Version: stateVersion + 1,
		Files:   []fileState{{Path: "/x.go", Hash: "abc"}},
	})
	require.NoError(t, err)

	tracker := New("")
	require.NoError(t, tracker.LoadFrom(&buf))
	assert.Equal(t, 0, tracker.Len())
}
