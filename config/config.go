package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joripage/orderentry-dev/pkg/fixsubmit"
	redis_wrapper "github.com/joripage/orderentry-dev/pkg/infra/redis"
	"github.com/joripage/orderentry-dev/pkg/orderevent"
)

const (
	TransportHTTP = "http"
	TransportFIX  = "fix"

	// DefaultTradeAPIURL is where the trading backend listens when nothing
	// is configured. Overridden by upstream.http.base_url or TRADE_API_URL.
	DefaultTradeAPIURL = "http://localhost:8080"
)

type AppConfig struct {
	ServiceName string             `yaml:"service_name"`
	LogLevel    string             `yaml:"log_level"`
	Server      *ServerConfig      `yaml:"server"`
	Upstream    *UpstreamConfig    `yaml:"upstream"`
	Quotes      *QuotesConfig      `yaml:"quotes"`
	Events      *orderevent.Config `yaml:"events"`
	Ticket      *TicketConfig      `yaml:"ticket"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type UpstreamConfig struct {
	// Transport selects how orders leave the gateway: http or fix.
	Transport string              `yaml:"transport"`
	HTTP      *HTTPUpstreamConfig `yaml:"http"`
	FIX       *fixsubmit.Config   `yaml:"fix"`
}

type HTTPUpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type QuotesConfig struct {
	Redis          *redis_wrapper.RedisConfig `yaml:"redis"`
	Assets         []string                   `yaml:"assets"`
	PollIntervalMS int                        `yaml:"poll_interval_ms"`
}

type TicketConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.applyDefaults()

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}

// applyDefaults fills the gaps so callers never nil-check sections. The
// upstream base URL falls back to TRADE_API_URL, then to the packaged
// backend address.
func (cfg *AppConfig) applyDefaults() {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "orderentry"
	}
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8081"
	}
	if cfg.Upstream == nil {
		cfg.Upstream = &UpstreamConfig{}
	}
	if cfg.Upstream.Transport == "" {
		cfg.Upstream.Transport = TransportHTTP
	}
	if cfg.Upstream.HTTP == nil {
		cfg.Upstream.HTTP = &HTTPUpstreamConfig{}
	}
	if cfg.Upstream.HTTP.BaseURL == "" {
		cfg.Upstream.HTTP.BaseURL = os.Getenv("TRADE_API_URL")
	}
	if cfg.Upstream.HTTP.BaseURL == "" {
		cfg.Upstream.HTTP.BaseURL = DefaultTradeAPIURL
	}
	if cfg.Quotes == nil {
		cfg.Quotes = &QuotesConfig{}
	}
	if cfg.Quotes.PollIntervalMS <= 0 {
		cfg.Quotes.PollIntervalMS = 1000
	}
	if cfg.Ticket == nil {
		cfg.Ticket = &TicketConfig{}
	}
}
