package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"signal-systemv1/internal/logger"
)

// Config holds all run configuration. It is built once in main and passed
// down explicitly; no component reads the environment on its own.
type Config struct {
	Service string        `yaml:"service" default:"signal-engine"`
	Log     logger.Config `yaml:"log"`

	// Assets are processed sequentially in this order.
	Assets       []string      `yaml:"assets" default:"[\"BTC-USD\",\"ETH-USD\",\"XRP-USD\"]" validate:"min=1,dive,required"`
	Interval     time.Duration `yaml:"interval" default:"30m" validate:"gt=0"`
	Lookback     time.Duration `yaml:"lookback" default:"1440h" validate:"gtfield=Interval"`
	GapTolerance time.Duration `yaml:"gap_tolerance" default:"1m"`

	Data       DataConfig       `yaml:"data"`
	Indicators IndicatorConfig  `yaml:"indicators"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Decision   DecisionConfig   `yaml:"decision"`
	State      StateConfig      `yaml:"state"`
	Output     OutputConfig     `yaml:"output"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DataConfig configures the ordered market-data provider chain.
type DataConfig struct {
	// Providers are tried in order until one returns usable bars.
	Providers []string      `yaml:"providers" default:"[\"binance\",\"coinbase\",\"cache\"]" validate:"min=1,dive,oneof=binance coinbase csv cache"`
	Timeout   time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
	Attempts  int           `yaml:"attempts" default:"3" validate:"min=1,max=5"`
	CacheBars bool          `yaml:"cache_bars" default:"true"` // write fetched bars to the SQLite bar cache

	BinanceURL  string `yaml:"binance_url" default:"https://api.binance.com" validate:"url"`
	CoinbaseURL string `yaml:"coinbase_url" default:"https://api.exchange.coinbase.com" validate:"url"`
	CSVDir      string `yaml:"csv_dir" default:"data/csv"`
	CachePath   string `yaml:"cache_path" default:"data/bars.db"`

	// Breaker skips a provider for the rest of the run after this many consecutive failures.
	BreakerFailures int `yaml:"breaker_failures" default:"2" validate:"min=1"`
}

// IndicatorConfig holds indicator windows.
type IndicatorConfig struct {
	RSIPeriod  int     `yaml:"rsi_period" default:"14" validate:"min=2"`
	MACDFast   int     `yaml:"macd_fast" default:"12" validate:"min=1"`
	MACDSlow   int     `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal int     `yaml:"macd_signal" default:"9" validate:"min=1"`
	BBPeriod   int     `yaml:"bb_period" default:"20" validate:"min=2"`
	BBStdDev   float64 `yaml:"bb_stddev" default:"2" validate:"gt=0"`
	ATRPeriod  int     `yaml:"atr_period" default:"14" validate:"min=1"`
}

// ClassifierConfig configures the load-or-train classifier adapter.
type ClassifierConfig struct {
	Enabled    bool    `yaml:"enabled" default:"true"`
	ModelPath  string  `yaml:"model_path" default:"data/classifier.json"`
	Horizon    int     `yaml:"horizon" default:"3" validate:"min=1"`
	Threshold  float64 `yaml:"threshold" default:"0.002" validate:"gte=0"`
	MinSamples int     `yaml:"min_samples" default:"50" validate:"min=1"`
	Trees      int     `yaml:"trees" default:"100" validate:"min=1"`
	MaxDepth   int     `yaml:"max_depth" default:"6" validate:"min=1"`
	Seed       int64   `yaml:"seed" default:"42"`
}

// DecisionConfig configures the entry/exit rules.
type DecisionConfig struct {
	Rule          string  `yaml:"rule" default:"bollinger" validate:"oneof=bollinger rsi_macd"`
	TieBreak      string  `yaml:"tie_break" default:"sell_first" validate:"oneof=sell_first buy_first"`
	RSIBuy        float64 `yaml:"rsi_buy" default:"30" validate:"gte=0,lte=100"`
	RSISell       float64 `yaml:"rsi_sell" default:"70" validate:"gte=0,lte=100"`
	ATRMultiplier float64 `yaml:"atr_multiplier" default:"1.5" validate:"gt=0"`
}

// StateConfig selects the SignalState backend.
type StateConfig struct {
	Backend    string      `yaml:"backend" default:"file" validate:"oneof=file sqlite redis"`
	Path       string      `yaml:"path" default:"data/last_signals.json"`
	SQLitePath string      `yaml:"sqlite_path" default:"data/signals.db"`
	Redis      RedisConfig `yaml:"redis"`

	// A file lock older than this is treated as left behind by a crashed run.
	LockStale time.Duration `yaml:"lock_stale" default:"1h" validate:"gt=0"`
}

// RedisConfig configures the Redis state backend and run lock.
type RedisConfig struct {
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key" default:"signals:last"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"10m" validate:"gt=0"`
}

// OutputConfig configures run artefacts besides the persisted state.
type OutputConfig struct {
	SignalLog     string `yaml:"signal_log" default:"data/signals.txt"`
	HoldLog       string `yaml:"hold_log"`    // empty disables the HOLD log
	HistoryDir    string `yaml:"history_dir"` // empty disables per-symbol history export
	HistoryFormat string `yaml:"history_format" default:"csv" validate:"oneof=csv json parquet"`
}

// NotifyConfig configures the primary/fallback notification channels.
type NotifyConfig struct {
	Primary  string         `yaml:"primary" default:"log" validate:"oneof=webhook email telegram log none"`
	Fallback string         `yaml:"fallback" default:"none" validate:"oneof=webhook email telegram log none"`
	Timeout  time.Duration  `yaml:"timeout" default:"15s" validate:"gt=0"`
	Source   string         `yaml:"source" default:"signal-engine"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// WebhookConfig configures the HTTP webhook channel.
type WebhookConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host     string   `yaml:"host" default:"smtp.gmail.com"`
	Port     int      `yaml:"port" default:"465" validate:"min=1,max=65535"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from" validate:"omitempty,email"`
	To       []string `yaml:"to" validate:"dive,email"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// MetricsConfig configures the Prometheus Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job" default:"signal_engine"`
}

// Load builds the configuration: defaults, then the YAML file (if path is
// non-empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	c.applyEnv(os.LookupEnv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv overrides secrets and a few operational knobs from the environment.
// lookup is injected so tests do not depend on the process environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("SIGNAL_ASSETS"); ok && v != "" {
		c.Assets = splitList(v)
	}
	if v, ok := lookup("SIGNAL_PROVIDERS"); ok && v != "" {
		c.Data.Providers = splitList(v)
	}
	if v, ok := lookup("SIGNAL_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("SIGNAL_WEBHOOK_URL"); ok {
		c.Notify.Webhook.URL = v
	}
	if v, ok := lookup("SIGNAL_SMTP_USERNAME"); ok {
		c.Notify.Email.Username = v
	}
	if v, ok := lookup("SIGNAL_SMTP_PASSWORD"); ok {
		c.Notify.Email.Password = v
	}
	if v, ok := lookup("SIGNAL_EMAIL_TO"); ok && v != "" {
		c.Notify.Email.To = splitList(v)
	}
	if v, ok := lookup("SIGNAL_TELEGRAM_TOKEN"); ok {
		c.Notify.Telegram.Token = v
	}
	if v, ok := lookup("SIGNAL_TELEGRAM_CHAT_ID"); ok && v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.Telegram.ChatID = id
		}
	}
	if v, ok := lookup("SIGNAL_REDIS_PASSWORD"); ok {
		c.State.Redis.Password = v
	}
	if v, ok := lookup("SIGNAL_PUSHGATEWAY_URL"); ok {
		c.Metrics.PushgatewayURL = v
	}
}

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if seen[a] {
			return fmt.Errorf("assets: duplicate symbol %q", a)
		}
		seen[a] = true
	}

	n := c.Notify
	if n.Primary != "none" && n.Primary == n.Fallback {
		return errors.New("notify: primary and fallback must differ")
	}
	for _, ch := range []string{n.Primary, n.Fallback} {
		switch ch {
		case "webhook":
			if n.Webhook.URL == "" {
				return errors.New("notify.webhook.url is required when the webhook channel is used")
			}
		case "email":
			if n.Email.From == "" || len(n.Email.To) == 0 {
				return errors.New("notify.email from and to are required when the email channel is used")
			}
		case "telegram":
			if n.Telegram.Token == "" || n.Telegram.ChatID == 0 {
				return errors.New("notify.telegram token and chat_id are required when the telegram channel is used")
			}
		}
	}
	if c.Decision.RSIBuy >= c.Decision.RSISell {
		return errors.New("decision: rsi_buy must be below rsi_sell")
	}
	return nil
}

// Notifying reports whether any notification channel is configured.
func (c *Config) Notifying() bool {
	return c.Notify.Primary != "none" || c.Notify.Fallback != "none"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
