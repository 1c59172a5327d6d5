package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.Contains(t, out, "[ERROR] shown 4")
}

func TestLogger_Mirror(t *testing.T) {
	var file, mirror bytes.Buffer
	l := New(&file, DEBUG)
	l.SetMirror(&mirror)

	l.Debug("plan has %d steps", 3)

	assert.Contains(t, file.String(), "plan has 3 steps")
	assert.Equal(t, "[DEBUG] plan has 3 steps\n", mirror.String())
}

func TestInitialize_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	t.Cleanup(func() {
		GetLogger().Close()
		SetGlobal(nil)
	})

	Info("hello %s", "file")

	path := GetLogger().GetLogPath()
	assert.Equal(t, filepath.Join(dir, ".qarun", "logs", "qarun.log"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] hello file")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}
