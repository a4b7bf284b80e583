package healthcheck

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-decomp/internal/config"
	"github.com/l3aro/go-decomp/pkg/cache"
	"github.com/l3aro/go-decomp/pkg/decomp"
)

// Status values reported by the checks.
const (
	StatusReady    = "ready"
	StatusEmpty    = "empty"
	StatusDisabled = "disabled"
	StatusStale    = "stale"
	StatusError    = "error"
)

// ComponentStatus is the health of one component.
type ComponentStatus struct {
	Name   string
	Detail string // path, binary location or entry count
	Status string
	Error  string
}

// OK reports whether the component can be used as configured.
func (s ComponentStatus) OK() bool {
	return s.Status != StatusError
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Cache          ComponentStatus
	Frontends      []ComponentStatus
}

// OK reports whether every component is usable.
func (r *HealthCheckResult) OK() bool {
	if !r.Cache.OK() {
		return false
	}
	for _, f := range r.Frontends {
		if !f.OK() {
			return false
		}
	}
	return true
}

// lookPath finds the go command; tests swap it.
var lookPath = exec.LookPath

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Cache:          checkCache(cfg),
		Frontends: []ComponentStatus{
			{Name: string(config.FrontendLLVM), Status: StatusReady},
			{Name: string(config.FrontendGoSrc), Status: StatusReady},
			{Name: string(config.FrontendYAML), Status: StatusReady},
			checkGoSSA(),
		},
	}, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	globalDir := filepath.Dir(config.GlobalConfigFilePath())
	if abs, err := filepath.Abs(path); err == nil && strings.HasPrefix(abs, globalDir+string(filepath.Separator)) {
		return "global"
	}
	return "project"
}

// checkCache opens the persisted summary cache the way an analysis run would.
func checkCache(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{Name: "cache", Detail: cfg.CachePath()}
	if !cfg.CacheEnabled {
		status.Status = StatusDisabled
		return status
	}

	if _, err := os.Stat(status.Detail); errors.Is(err, os.ErrNotExist) {
		status.Status = StatusEmpty
		return status
	}

	c, err := decomp.OpenSummaryCache(status.Detail, cfg.CacheSize)
	switch {
	case errors.Is(err, cache.ErrVersionMismatch):
		status.Status = StatusStale
		status.Error = err.Error()
	case err != nil:
		status.Status = StatusError
		status.Error = err.Error()
	case c.Len() == 0:
		status.Status = StatusEmpty
	default:
		status.Status = StatusReady
		status.Detail = fmt.Sprintf("%s (%d entries)", status.Detail, c.Len())
	}
	return status
}

// checkGoSSA verifies the go command that go/packages shells out to.
func checkGoSSA() ComponentStatus {
	status := ComponentStatus{Name: string(config.FrontendGoSSA)}
	path, err := lookPath("go")
	if err != nil {
		status.Status = StatusError
		status.Error = fmt.Sprintf("go command not found: %v", err)
		return status
	}
	status.Status = StatusReady
	status.Detail = path
	return status
}
