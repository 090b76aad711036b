package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/pkg/logging"
)

func capture(level logging.Level) (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logging.NewLogger(level)
	log.SetOutput(&buf)
	return log, &buf
}

func TestLogger_LevelFiltering(t *testing.T) {
	log, buf := capture(logging.LevelWarn)

	log.Debug("d")
	log.Info("i")
	log.Warn("w")
	log.Error("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[1], `"level":"error"`)
}

func TestLogger_Fields(t *testing.T) {
	log, buf := capture(logging.LevelInfo)

	child := log.WithFields(map[string]any{"uuid": "u1"})
	child.Info("create snapshot", map[string]any{"file": "/a"})

	var entry struct {
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "create snapshot", entry.Message)
	assert.Equal(t, "u1", entry.Fields["uuid"])
	assert.Equal(t, "/a", entry.Fields["file"])
}

func TestLogger_ErrorErr(t *testing.T) {
	log, buf := capture(logging.LevelError)

	log.ErrorErr("update failed", assert.AnError, map[string]any{"uuid": "u1"})

	var entry struct {
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, assert.AnError.Error(), entry.Fields["error"])
	assert.Equal(t, "u1", entry.Fields["uuid"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logging.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, logging.LevelInfo, logging.ParseLevel("nonsense"))
	assert.Equal(t, logging.LevelError, logging.ParseLevel("error"))
}
