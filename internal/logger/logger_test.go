package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitializeWritesLevelFilteredFiles(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "app.log")
	errorFile := filepath.Join(dir, "error.log")

	require.NoError(t, Initialize(Configuration{LogFile: logFile, ErrorFile: errorFile, Level: "info"}))
	t.Cleanup(func() { log = zap.NewNop() })

	Debug("hidden")
	Info("checkout: opened", zap.String("session", "abc"))
	Error("checkout: failed")
	Sync()

	all, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(all), "hidden")
	assert.Contains(t, string(all), `"session":"abc"`)
	assert.Contains(t, string(all), "checkout: failed")

	errs, err := os.ReadFile(errorFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(errs), "\n"))
	assert.Contains(t, string(errs), "checkout: failed")
}

func TestInitializeRejectsUnwritablePath(t *testing.T) {
	err := Initialize(Configuration{LogFile: filepath.Join(t.TempDir(), "missing", "app.log")})
	assert.Error(t, err)
}
