package healthcheck

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/pkg/decomp"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	return cfg
}

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckWithInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 0
	if _, err := Check(cfg, "", ""); err == nil {
		t.Error("Expected error for invalid config, got nil")
	}
}

func TestCheckCache(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CacheEnabled = false
		result, err := Check(cfg, "", "")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if result.Cache.Status != StatusDisabled {
			t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, StatusDisabled)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		result, err := Check(testConfig(t), "", "")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if result.Cache.Status != StatusEmpty {
			t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, StatusEmpty)
		}
	})

	t.Run("populated", func(t *testing.T) {
		cfg := testConfig(t)
		c := decomp.NewSummaryCache(10)
		c.Set("abc", decomp.Summary{Function: "f", Reducible: true})
		if err := c.PersistToFile(cfg.CachePath()); err != nil {
			t.Fatalf("PersistToFile() failed: %v", err)
		}

		result, err := Check(cfg, "", "")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if result.Cache.Status != StatusReady {
			t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, StatusReady)
		}
		if !strings.Contains(result.Cache.Detail, "1 entries") {
			t.Errorf("Cache.Detail = %q, want entry count", result.Cache.Detail)
		}
	})

	t.Run("other version", func(t *testing.T) {
		cfg := testConfig(t)
		data, err := msgpack.Marshal(map[string]any{"version": 99})
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(cfg.CachePath(), data, 0o644); err != nil {
			t.Fatal(err)
		}

		result, err := Check(cfg, "", "")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if result.Cache.Status != StatusStale {
			t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, StatusStale)
		}
		if !result.Cache.OK() {
			t.Error("a stale cache is rebuilt, not an error")
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		cfg := testConfig(t)
		if err := os.WriteFile(cfg.CachePath(), []byte{0xc1}, 0o644); err != nil {
			t.Fatal(err)
		}

		result, err := Check(cfg, "", "")
		if err != nil {
			t.Fatalf("Check() failed: %v", err)
		}
		if result.Cache.Status != StatusError {
			t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, StatusError)
		}
		if result.OK() {
			t.Error("OK() = true with a corrupt cache")
		}
	})
}

func TestCheckGoSSA(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	lookPath = func(string) (string, error) { return "", errors.New("not in PATH") }
	result, err := Check(testConfig(t), "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if len(result.Frontends) != 4 {
		t.Fatalf("len(Frontends) = %d, want 4", len(result.Frontends))
	}
	gossa := result.Frontends[3]
	if gossa.Name != "gossa" || gossa.Status != StatusError {
		t.Errorf("gossa = %+v, want error status", gossa)
	}
	if result.OK() {
		t.Error("OK() = true without a go command")
	}

	lookPath = func(string) (string, error) { return "/usr/local/go/bin/go", nil }
	result, err = Check(testConfig(t), "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if !result.OK() {
		t.Errorf("OK() = false, frontends %+v", result.Frontends)
	}
	if result.Frontends[3].Detail != "/usr/local/go/bin/go" {
		t.Errorf("gossa Detail = %q", result.Frontends[3].Detail)
	}
}

func TestScopeFromPath(t *testing.T) {
	globalPath := config.GlobalConfigFilePath()

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"empty path", "", ""},
		{"global path", globalPath, "global"},
		{"project path", filepath.Join("project", ".decomp", "config.yaml"), "project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scopeFromPath(tt.path); got != tt.expected {
				t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
