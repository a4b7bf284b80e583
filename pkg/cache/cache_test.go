package cache

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type summary struct {
	Function string `msgpack:"function"`
	Blocks   int    `msgpack:"blocks"`
}

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	_, found = c.Get("zz")
	assert.False(t, found)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string]{MaxSize: 3, OnEvict: func(key string, _ string) {
		evicted = append(evicted, key)
	}})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, found := c.Get(key)
		assert.True(t, found, key)
	}
}

func TestLRU_MaxBytes(t *testing.T) {
	c := New(Options[string]{MaxBytes: 25})

	c.Set("a", strings.Repeat("x", 10))
	c.Set("b", strings.Repeat("x", 10))
	c.Set("c", strings.Repeat("x", 10))

	assert.Equal(t, 2, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)

	c.Set("big", strings.Repeat("x", 100))
	assert.Equal(t, 1, c.Len(), "an oversized entry evicts everything else but stays")
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})

	c.Set("a", "old")
	c.Set("a", "new")
	c.Set("b", "value_b")
	assert.Equal(t, 2, c.Len())

	val, _ := c.Get("a")
	assert.Equal(t, "new", val)

	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(len("value_b")), c.Stats().CurrentBytes)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[int]{})
	assert.Zero(t, c.HitRate())

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 2.0/3.0, c.HitRate(), 1e-9)
}

func TestLRU_SaveLoadKeepsRecency(t *testing.T) {
	c := New(Options[summary]{MaxSize: 10})
	c.Set("f1", summary{Function: "f1", Blocks: 3})
	c.Set("f2", summary{Function: "f2", Blocks: 5})
	c.Get("f1")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	loaded := New(Options[summary]{MaxSize: 1})
	require.NoError(t, loaded.Load(&buf))

	assert.Equal(t, 1, loaded.Len(), "limits apply to loaded entries")
	val, found := loaded.Get("f1")
	require.True(t, found, "most recently used entry survives")
	assert.Equal(t, summary{Function: "f1", Blocks: 3}, val)
}

func TestLRU_LoadVersionMismatch(t *testing.T) {
	raw, err := msgpack.Marshal(&file[string]{Version: FormatVersion + 1})
	require.NoError(t, err)

	c := New(Options[string]{})
	err = c.Load(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestLRU_FilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summaries.msgpack")

	c := New(Options[summary]{})
	require.NoError(t, c.LoadFromFile(path), "missing file is not an error")

	c.Set("k", summary{Function: "main", Blocks: 1})
	require.NoError(t, c.PersistToFile(path))

	loaded := New(Options[summary]{})
	require.NoError(t, loaded.LoadFromFile(path))
	val, found := loaded.Get("k")
	require.True(t, found)
	assert.Equal(t, "main", val.Function)
}
