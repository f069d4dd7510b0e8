package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igharvest/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"console info", &config.LoggingConfig{Level: "info", Format: "console"}, false},
		{"json debug", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "igharvest.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.WithField("username", "natgeo").WithError(errors.New("boom")).Error("Account scrape failed")
	l.InfoWithFields("Batch completed", map[string]interface{}{
		"accounts_processed": 3,
		"elapsed":            time.Second,
	})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "igharvest", lines[0]["app"])
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "natgeo", lines[0]["username"])
	assert.Equal(t, "boom", lines[0]["error"])

	assert.Equal(t, "Batch completed", lines[1]["message"])
	assert.Equal(t, float64(3), lines[1]["accounts_processed"])
}

func TestWithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewWithWriter(&config.LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	child := base.WithFields(map[string]interface{}{"component": "runner"})
	child.Info("from child")
	base.Info("from base")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "runner", lines[0]["component"])
	_, ok := lines[1]["component"]
	assert.False(t, ok)
}

func TestTestLoggerCapturesChildren(t *testing.T) {
	tl := NewTestLogger()

	tl.WithField("username", "a").WithError(errors.New("nope")).Warn("skipped")
	tl.InfoWithFields("done", map[string]interface{}{"items": 2})

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "a", msgs[0].Fields["username"])
	assert.EqualError(t, msgs[0].Error, "nope")
	assert.Equal(t, 2, msgs[1].Fields["items"])

	assert.True(t, tl.HasMessage("done"))
	assert.False(t, tl.HasError())
	assert.Contains(t, tl.String(), "[WARN] skipped")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestLogAccountOutcome(t *testing.T) {
	tl := NewTestLogger()

	LogAccountOutcome(tl, "ok_user", 12, nil)
	LogAccountOutcome(tl, "bad_user", 0, errors.New("No data returned from Apify"))

	infos := tl.GetMessagesByLevel("INFO")
	require.Len(t, infos, 1)
	assert.Equal(t, 12, infos[0].Fields["items_scraped"])

	errs := tl.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, "bad_user", errs[0].Fields["username"])
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("k", "v").Info("ignored")
	assert.NotNil(t, l.GetZerolog())
}

func TestNewWithFile(t *testing.T) {
	_, err := NewWithFile(&config.LoggingConfig{Level: "info"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "run.log")
	l, err := NewWithFile(&config.LoggingConfig{Level: "info", Format: "console", File: path})
	require.NoError(t, err)

	l.WithField("username", "natgeo").Info("harvest started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "harvest started", line["message"])
	assert.Equal(t, "natgeo", line["username"])
}
