package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/logging"
	"github.com/go-go-golems/helpdesk/pkg/redisstream"
	"github.com/go-go-golems/helpdesk/pkg/ui"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HELPDESK_BASE_URL.
const EnvPrefix = "HELPDESK"

// Settings is the resolved configuration for a helpdesk process.
type Settings struct {
	BaseURL      string        `mapstructure:"base-url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Title        string        `mapstructure:"title"`
	TranscriptDB string        `mapstructure:"transcript-db"`
	MetricsAddr  string        `mapstructure:"metrics-addr"`

	Logging logging.Settings     `mapstructure:",squash"`
	Redis   redisstream.Settings `mapstructure:",squash"`
}

// AddFlags registers the persistent flags shared by every command.
func AddFlags(cmd *cobra.Command) {
	redis := redisstream.DefaultSettings()
	f := cmd.PersistentFlags()
	f.String("base-url", helpdesk.DefaultBaseURL, "Helpdesk service base URL")
	f.Duration("timeout", 0, "Per-request timeout (0 leaves the transport default)")
	f.String("title", ui.DefaultTitle, "Title shown in the chat header")
	f.String("transcript-db", "", "SQLite file journaling every session (disabled when empty)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (disabled when empty)")
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.String("log-format", "console", "Log format (console, json)")
	f.String("log-file", "", "Write logs to this file instead of stderr")
	f.Bool("redis-enabled", redis.Enabled, "Publish session events over Redis Streams")
	f.String("redis-addr", redis.Addr, "Redis address host:port")
	f.String("redis-group", redis.Group, "Redis consumer group prefix")
	f.String("redis-consumer", redis.Consumer, "Redis consumer name")
}

// InitViper loads .env, binds flags and environment, and reads an optional config file.
func InitViper(appName string, rootCmd *cobra.Command) error {
	// .env is optional
	_ = godotenv.Load()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configFile := findConfigFile(appName); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}

	return viper.BindPFlags(rootCmd.PersistentFlags())
}

// findConfigFile picks $HELPDESK_CONFIG, then ./<app>.yaml, then ~/.<app>/config.yaml.
func findConfigFile(appName string) string {
	if configFile := os.Getenv(EnvPrefix + "_CONFIG"); configFile != "" {
		return configFile
	}
	candidates := []string{appName + ".yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "."+appName, "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Load resolves Settings from viper.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if _, err := helpdesk.ParseBaseURL(s.BaseURL); err != nil {
		return err
	}
	if s.Timeout < 0 {
		return errors.Errorf("timeout must not be negative, got %s", s.Timeout)
	}
	if err := s.Logging.Validate(); err != nil {
		return err
	}
	return s.Redis.Validate()
}

// NewClient builds the helpdesk client described by s.
func (s *Settings) NewClient() (*helpdesk.Client, error) {
	return helpdesk.NewClient(s.BaseURL, helpdesk.WithTimeout(s.Timeout))
}
