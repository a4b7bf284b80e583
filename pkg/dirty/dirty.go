// Package dirty tracks which input files changed since they were last
// analysed cleanly, based on content hashing.
package dirty

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultStateFile is the file name of the persisted state inside the cache
// directory.
const DefaultStateFile = "inputs.msgpack"

const stateVersion = 1

// fileState is the last clean analysis of one file.
type fileState struct {
	Path       string `msgpack:"path"`
	Hash       string `msgpack:"hash"`
	AnalysedAt int64  `msgpack:"analysed_at"` // Unix timestamp
}

type stateData struct {
	Version int         `msgpack:"version"`
	Files   []fileState `msgpack:"files"`
}

// Tracker remembers content hashes of cleanly analysed inputs.
type Tracker struct {
	mu    sync.RWMutex
	files map[string]fileState
	path  string
}

// New creates an empty Tracker persisted at path.
func New(path string) *Tracker {
	return &Tracker{files: make(map[string]fileState), path: path}
}

// Open loads the Tracker persisted at path. A missing file gives an empty
// tracker.
func Open(path string) (*Tracker, error) {
	t := New(path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()

	if err := t.LoadFrom(f); err != nil {
		return New(path), err
	}
	return t, nil
}

// computeHash computes SHA256 hash of file contents.
func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Changed reports whether path is new or differs from its last recorded
// clean analysis.
func (t *Tracker) Changed(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to get absolute path: %w", err)
	}
	hash, err := computeHash(absPath)
	if err != nil {
		return false, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.files[absPath]
	return !ok || state.Hash != hash, nil
}

// Record stores the current content of path as cleanly analysed.
func (t *Tracker) Record(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	hash, err := computeHash(absPath)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[absPath] = fileState{Path: absPath, Hash: hash, AnalysedAt: time.Now().Unix()}
	return nil
}

// Forget removes path, so the next Changed reports it.
func (t *Tracker) Forget(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, absPath)
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// Files returns the tracked absolute paths in order.
func (t *Tracker) Files() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.files))
	for p := range t.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Save persists the state to the tracker's path, creating its directory.
func (t *Tracker) Save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	if err := t.SaveTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveTo writes the state to w, files in path order.
func (t *Tracker) SaveTo(w io.Writer) error {
	t.mu.RLock()
	data := stateData{Version: stateVersion, Files: make([]fileState, 0, len(t.files))}
	for _, state := range t.files {
		data.Files = append(data.Files, state)
	}
	t.mu.RUnlock()
	sort.Slice(data.Files, func(i, j int) bool { return data.Files[i].Path < data.Files[j].Path })

	if err := msgpack.NewEncoder(w).Encode(&data); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return nil
}

// LoadFrom replaces the state with the one read from r. State written by
// another version is dropped, which makes every file count as changed.
func (t *Tracker) LoadFrom(r io.Reader) error {
	var data stateData
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = make(map[string]fileState, len(data.Files))
	if data.Version != stateVersion {
		return nil
	}
	for _, state := range data.Files {
		t.files[state.Path] = state
	}
	return nil
}
