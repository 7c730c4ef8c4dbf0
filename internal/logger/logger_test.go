package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l, err := New(DefaultConfig())
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "bogus", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
}

func TestNew_FileWriter(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "nested", "kontext.log")

	l, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)

	l.Info().Str("component", "test").Msg("hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestClose_NoFile(t *testing.T) {
	l, err := New(Config{Console: true})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
