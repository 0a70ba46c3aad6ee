package redisstream

import "github.com/pkg/errors"

// Settings holds Redis Streams transport configuration for the session event bus.
type Settings struct {
	Enabled  bool   `mapstructure:"redis-enabled"`
	Addr     string `mapstructure:"redis-addr"`
	Group    string `mapstructure:"redis-group"`
	Consumer string `mapstructure:"redis-consumer"`
}

// DefaultSettings keeps the transport in-process.
func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "helpdesk-ui",
		Consumer: "ui-1",
	}
}

func (s Settings) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Addr == "" {
		return errors.New("redis-addr is required when redis-enabled is set")
	}
	if s.Group == "" || s.Consumer == "" {
		return errors.New("redis-group and redis-consumer are required when redis-enabled is set")
	}
	return nil
}

// GroupFor derives a per-handler consumer group so that every handler sees every event.
func (s Settings) GroupFor(handler string) string {
	if handler == "" {
		return s.Group
	}
	return s.Group + "-" + handler
}
