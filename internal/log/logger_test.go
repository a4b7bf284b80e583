package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: DebugLevel, JSONOutput: true, Stderr: &buf})

	l.With("function", "main").Info("reduced", "primitives", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "reduced", entry["message"])
	assert.Equal(t, "main", entry["function"])
	assert.Equal(t, float64(3), entry["primitives"])
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: WarnLevel, JSONOutput: true, Stderr: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(DebugLevel)
	l.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, NoColor: true, Stderr: &buf})

	l.Warn("slow function", "blocks", 1200)
	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "slow function")
	assert.True(t, strings.Contains(out, "blocks=1200"), out)
}
