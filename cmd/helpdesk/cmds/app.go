package cmds

import (
	"context"
	"io"

	"github.com/go-go-golems/helpdesk/pkg/chatrunner"
	"github.com/go-go-golems/helpdesk/pkg/config"
	"github.com/go-go-golems/helpdesk/pkg/logging"
	"github.com/go-go-golems/helpdesk/pkg/metrics"
	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// App carries the resolved settings of one command invocation.
type App struct {
	Settings  *config.Settings
	logCloser io.Closer
}

// LoadApp decodes settings and (re)initializes logging. quiet keeps log lines off
// the terminal while a full-screen UI owns it.
func LoadApp(quiet bool) (*App, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	closer, err := logging.InitLogger(s.Logging, logging.Options{Quiet: quiet})
	if err != nil {
		return nil, err
	}
	return &App{Settings: s, logCloser: closer}, nil
}

func (a *App) Close() error {
	return a.logCloser.Close()
}

// QuietLogging stops writing log lines to the terminal, e.g. before a full-screen
// view takes it over. A configured log file keeps receiving them.
func (a *App) QuietLogging() {
	if a.Settings.Logging.File != "" {
		return
	}
	closer, err := logging.InitLogger(a.Settings.Logging, logging.Options{Quiet: true})
	if err != nil {
		log.Warn().Err(err).Msg("could not silence terminal logging")
		return
	}
	_ = a.logCloser.Close()
	a.logCloser = closer
}

// NewChatBuilder wires the configured backend, transcript journal and metrics into a
// chat builder. The returned cleanup must run after the session finished.
func (a *App) NewChatBuilder(ctx context.Context) (*chatrunner.ChatBuilder, func(), error) {
	client, err := a.Settings.NewClient()
	if err != nil {
		return nil, nil, err
	}

	b := chatrunner.NewChatBuilder().
		WithContext(ctx).
		WithBackend(client).
		WithRedisSettings(a.Settings.Redis).
		WithTitle(a.Settings.Title)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if path := a.Settings.TranscriptDB; path != "" {
		store, err := openTranscriptStore(path)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = store.Close() })
		b.WithEventHandler("journal", chatstore.JournalFunc(store, client.BaseURL()))
		log.Debug().Str("path", path).Msg("journaling sessions")
	}

	if addr := a.Settings.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.New(reg)
		b.WithEventHandler("metrics", m.HandleEvent)

		metricsCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := metrics.Serve(metricsCtx, addr, reg); err != nil {
				log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
		cleanups = append(cleanups, func() {
			cancel()
			<-done
		})
	}

	return b, cleanup, nil
}

func openTranscriptStore(path string) (*chatstore.SQLiteTranscriptStore, error) {
	dsn, err := chatstore.SQLiteTranscriptDSNForFile(path)
	if err != nil {
		return nil, err
	}
	store, err := chatstore.NewSQLiteTranscriptStore(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open transcript journal %s", path)
	}
	return store, nil
}
