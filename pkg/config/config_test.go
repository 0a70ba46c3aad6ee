package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd := &cobra.Command{Use: "helpdesk"}
	AddFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Parse(args))

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	require.NoError(t, v.BindPFlags(cmd.PersistentFlags()))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", s.BaseURL)
	require.Equal(t, time.Duration(0), s.Timeout)
	require.Equal(t, ui.DefaultTitle, s.Title)
	require.Equal(t, "info", s.Logging.Level)
	require.False(t, s.Redis.Enabled)
	require.Equal(t, "localhost:6379", s.Redis.Addr)
}

func TestLoad_Flags(t *testing.T) {
	s, err := Load(newViper(t,
		"--base-url", "https://helpdesk.example.com",
		"--timeout", "30s",
		"--log-level", "debug",
		"--redis-enabled",
	))
	require.NoError(t, err)
	require.Equal(t, "https://helpdesk.example.com", s.BaseURL)
	require.Equal(t, 30*time.Second, s.Timeout)
	require.Equal(t, "debug", s.Logging.Level)
	require.True(t, s.Redis.Enabled)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HELPDESK_TITLE", "Service Desk")
	v := newViper(t)
	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "Service Desk", s.Title)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(newViper(t, "--base-url", "localhost:8000"))
	require.Error(t, err)

	_, err = Load(newViper(t, "--log-level", "loud"))
	require.Error(t, err)

	_, err = Load(newViper(t, "--timeout", "-1s"))
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base-url: http://desk.internal:9000\ntitle: Desk\n"), 0o600))
	t.Setenv("HELPDESK_CONFIG", path)
	require.Equal(t, path, findConfigFile("helpdesk"))

	v := newViper(t, "--title", "From Flag")
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "http://desk.internal:9000", s.BaseURL)
	require.Equal(t, "From Flag", s.Title)
}
