package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transport selects where live ticks come from.
type Transport string

const (
	TransportRedis  Transport = "redis"
	TransportBroker Transport = "broker"
)

// Config represents the application configuration.
type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	Feed   FeedConfig   `envPrefix:"FEED_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	Replay ReplayConfig `envPrefix:"REPLAY_"`
	Plot   PlotConfig   `envPrefix:"PLOT_"`
	Pub    PubConfig    `envPrefix:"PUB_"`
	Broker BrokerConfig `envPrefix:"BROKER_"`
}

type AppConfig struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE" envDefault:"logs/tickplot.log"`
	LogMaxSize    int    `env:"LOG_MAX_SIZE" envDefault:"5"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAge     int    `env:"LOG_MAX_AGE" envDefault:"7"`
	LogConsole    bool   `env:"LOG_CONSOLE" envDefault:"false"`
}

// FeedConfig drives the live pipeline. The live timer is off unless Enabled.
type FeedConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	Transport    Transport     `env:"TRANSPORT" envDefault:"redis"`
	Channel      string        `env:"CHANNEL" envDefault:"gdax"`
	Symbol       string        `env:"SYMBOL" envDefault:"ETH-USD"`
	BrokerURL    string        `env:"BROKER_URL" envDefault:"ws://localhost:8080/ws"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"10ms"`

	RenderTrades   bool `env:"RENDER_TRADES" envDefault:"false"`
	UnflaggedAsBid bool `env:"UNFLAGGED_AS_BID" envDefault:"false"`
	Retain         bool `env:"RETAIN" envDefault:"false"`
}

type RedisConfig struct {
	Addr           string        `env:"ADDR" envDefault:"localhost:6379"`
	Username       string        `env:"USERNAME"`
	Password       string        `env:"PASSWORD"`
	DB             int           `env:"DB" envDefault:"0"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	ChannelSize    int           `env:"CHANNEL_SIZE" envDefault:"1024"`
}

type ReplayConfig struct {
	File       string `env:"FILE" envDefault:"gdax_ETH-USD.csv"`
	SharedZero bool   `env:"SHARED_ZERO" envDefault:"false"`
}

type PlotConfig struct {
	Title         string        `env:"TITLE"`
	FrameInterval time.Duration `env:"FRAME_INTERVAL" envDefault:"100ms"`
	Color         bool          `env:"COLOR" envDefault:"true"`
}

// PubConfig drives cmd/tickpub, which replays a recorded file onto the feed.
type PubConfig struct {
	BatchSize int     `env:"BATCH_SIZE" envDefault:"50"`
	Speed     float64 `env:"SPEED" envDefault:"1"`
}

type BrokerConfig struct {
	Listen string `env:"LISTEN" envDefault:":8080"`
}

// Load loads the configuration from the environment.
// It does not validate: each binary overrides values with flags and validates what it uses.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Feed.Transport {
	case TransportRedis, TransportBroker:
	default:
		return fmt.Errorf("invalid feed transport %q (must be %q or %q)", c.Feed.Transport, TransportRedis, TransportBroker)
	}
	if c.Feed.Enabled && c.Feed.Symbol == "" {
		return fmt.Errorf("feed symbol is empty")
	}
	if c.Feed.Enabled && c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed poll interval must be positive, got %s", c.Feed.PollInterval)
	}
	if c.Plot.FrameInterval <= 0 {
		return fmt.Errorf("plot frame interval must be positive, got %s", c.Plot.FrameInterval)
	}
	if !c.Feed.Enabled && c.Replay.File == "" {
		return fmt.Errorf("nothing to do: feed disabled and no replay file")
	}
	return nil
}

// Title is the chart heading, defaulting to the instrument.
func (c *Config) Title() string {
	if c.Plot.Title != "" {
		return c.Plot.Title
	}
	return c.Feed.Symbol
}
