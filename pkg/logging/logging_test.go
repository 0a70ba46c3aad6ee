package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, Settings{}.Validate())
	assert.NoError(t, Settings{Level: "DEBUG", Format: "json"}.Validate())
	assert.Error(t, Settings{Level: "chatty"}.Validate())
	assert.Error(t, Settings{Format: "xml"}.Validate())
}

func TestInitLogger_JSONToStderr(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	closer, err := InitLogger(Settings{Level: "warn", Format: "json"}, Options{Stderr: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"message":"shown"`)
}

func TestInitLogger_QuietDiscards(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer
	closer, err := InitLogger(Settings{Level: "info"}, Options{Quiet: true, Stderr: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Error().Msg("nobody hears this")
	assert.Empty(t, buf.String())
}

func TestInitLogger_File(t *testing.T) {
	restoreGlobals(t)
	path := filepath.Join(t.TempDir(), "helpdesk.log")
	closer, err := InitLogger(Settings{Level: "info", File: path}, Options{Quiet: true})
	require.NoError(t, err)

	log.Info().Msg("to the file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to the file")
}
