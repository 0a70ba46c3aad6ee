package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	Level  string `mapstructure:"log-level"`
	Format string `mapstructure:"log-format"`
	File   string `mapstructure:"log-file"`
}

func (s Settings) Validate() error {
	if _, err := parseLevel(s.Level); err != nil {
		return err
	}
	switch strings.ToLower(s.Format) {
	case "", "console", "json":
		return nil
	default:
		return errors.Errorf("unknown log format %q (expected console or json)", s.Format)
	}
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", level)
	}
	return l, nil
}

// Options tweak where InitLogger sends output.
type Options struct {
	// Quiet discards stderr output when no log file is configured.
	// Full-screen UIs set this so log lines do not tear the display.
	Quiet bool
	// Stderr overrides the default stderr sink, mostly for tests.
	Stderr io.Writer
}

// InitLogger configures the global zerolog logger and returns a closer for the file sink.
func InitLogger(s Settings, opts Options) (io.Closer, error) {
	level, err := parseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case s.File != "":
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w, closer = lj, lj
	case opts.Quiet:
		w = io.Discard
	case opts.Stderr != nil:
		w = opts.Stderr
	default:
		w = os.Stderr
	}

	if strings.ToLower(s.Format) != "json" && s.File == "" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
