package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServiceName = "UCG_Information"
	defaultListingURL  = "https://ultraman-cardgame.com/page/jp/news/news-list"

	configPathEnv        = "UCG_CONFIG"
	botTokenEnv          = "TOKEN"
	officialChannelEnv   = "OFFICIAL_INFO_CHANNEL_ID"
	environmentChanEnv   = "ENVIRONMENT_CHANNEL_ID"
	newCardChannelEnv    = "NEW_CARD_CHANNEL_ID"
	officialUserEnv      = "OFFICIAL_USER_ID"
	officialBearerEnv    = "OFFICIAL_BEARER_TOKEN"
	environmentUserEnv   = "ENVIRONMENT_USER_ID"
	environmentBearerEnv = "ENVIRONMENT_BEARER_TOKEN"
	dbHostEnv            = "DB_HOST"
	dbPortEnv            = "DB_PORT"
	dbUserEnv            = "DB_USER"
	dbPasswordEnv        = "DB_PASSWORD"
	dbNameEnv            = "DB_NAME"
	dbSSLModeEnv         = "DB_SSLMODE"
	logLevelEnv          = "LOG_LEVEL"
	logFormatEnv         = "LOG_FORMAT"
	metricsAddrEnv       = "METRICS_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Service  string         `yaml:"service"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	Timeline TimelineConfig `yaml:"timeline"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	HTTP     HTTPConfig     `yaml:"http"`
	Relay    RelayConfig    `yaml:"relay"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

// DSN renders a lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// DiscordConfig wires the bot and its three destination channels.
type DiscordConfig struct {
	BotToken            string `yaml:"botToken"`
	APIBase             string `yaml:"apiBase"`
	GatewayURL          string `yaml:"gatewayUrl"`
	CommandPrefix       string `yaml:"commandPrefix"`
	OfficialInfoChannel string `yaml:"officialInfoChannel"`
	EnvironmentChannel  string `yaml:"environmentChannel"`
	NewCardChannel      string `yaml:"newCardChannel"`
}

// AccountConfig identifies one polled social account. An empty AccountID disables it.
type AccountConfig struct {
	AccountID   string `yaml:"accountId"`
	BearerToken string `yaml:"bearerToken"`
}

// TimelineConfig covers both social feeds and the API cadence.
type TimelineConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Official      AccountConfig `yaml:"official"`
	Environment   AccountConfig `yaml:"environment"`
	MaxResults    int           `yaml:"maxResults"`
	Attempts      int           `yaml:"attempts"`
	RateLimitStep time.Duration `yaml:"rateLimitStep"`
	Interval      time.Duration `yaml:"interval"`
}

// ScraperConfig points at the news listing page.
type ScraperConfig struct {
	ListingURL    string `yaml:"listingUrl"`
	TitleAttempts int    `yaml:"titleAttempts"`
}

// HTTPConfig tunes the shared fetch session.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Pacing  time.Duration `yaml:"pacing"`
	Retries int           `yaml:"retries"`
}

// RelayConfig defines the loop cadence.
type RelayConfig struct {
	TickDelay time.Duration `yaml:"tickDelay"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate reports settings without which the bot cannot start.
func (c Config) Validate() error {
	var errs []error
	if c.Discord.BotToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", botTokenEnv))
	}
	if c.Discord.OfficialInfoChannel == "" {
		errs = append(errs, fmt.Errorf("%s is required", officialChannelEnv))
	}
	if c.Discord.EnvironmentChannel == "" {
		errs = append(errs, fmt.Errorf("%s is required", environmentChanEnv))
	}
	if c.Discord.NewCardChannel == "" {
		errs = append(errs, fmt.Errorf("%s is required", newCardChannelEnv))
	}
	if c.Database.Name == "" {
		errs = append(errs, fmt.Errorf("%s is required", dbNameEnv))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Discord.BotToken, botTokenEnv)
	setString(&c.Discord.OfficialInfoChannel, officialChannelEnv)
	setString(&c.Discord.EnvironmentChannel, environmentChanEnv)
	setString(&c.Discord.NewCardChannel, newCardChannelEnv)

	setString(&c.Timeline.Official.AccountID, officialUserEnv)
	setString(&c.Timeline.Official.BearerToken, officialBearerEnv)
	setString(&c.Timeline.Environment.AccountID, environmentUserEnv)
	setString(&c.Timeline.Environment.BearerToken, environmentBearerEnv)

	setString(&c.Database.Host, dbHostEnv)
	setString(&c.Database.User, dbUserEnv)
	setString(&c.Database.Password, dbPasswordEnv)
	setString(&c.Database.Name, dbNameEnv)
	setString(&c.Database.SSLMode, dbSSLModeEnv)
	if v := os.Getenv(dbPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		} else {
			log.Printf("config: invalid %s %q, keeping %d", dbPortEnv, v, c.Database.Port)
		}
	}

	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Logging.Format, logFormatEnv)
	setString(&c.Metrics.Addr, metricsAddrEnv)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func mergeConfig(base, override Config) Config {
	mergeString(&base.Service, override.Service)
	mergeString(&base.Logging.Level, override.Logging.Level)
	mergeString(&base.Logging.Format, override.Logging.Format)

	mergeString(&base.Database.Host, override.Database.Host)
	mergeInt(&base.Database.Port, override.Database.Port)
	mergeString(&base.Database.User, override.Database.User)
	mergeString(&base.Database.Password, override.Database.Password)
	mergeString(&base.Database.Name, override.Database.Name)
	mergeString(&base.Database.SSLMode, override.Database.SSLMode)

	mergeString(&base.Discord.BotToken, override.Discord.BotToken)
	mergeString(&base.Discord.APIBase, override.Discord.APIBase)
	mergeString(&base.Discord.GatewayURL, override.Discord.GatewayURL)
	mergeString(&base.Discord.CommandPrefix, override.Discord.CommandPrefix)
	mergeString(&base.Discord.OfficialInfoChannel, override.Discord.OfficialInfoChannel)
	mergeString(&base.Discord.EnvironmentChannel, override.Discord.EnvironmentChannel)
	mergeString(&base.Discord.NewCardChannel, override.Discord.NewCardChannel)

	mergeString(&base.Timeline.BaseURL, override.Timeline.BaseURL)
	mergeString(&base.Timeline.Official.AccountID, override.Timeline.Official.AccountID)
	mergeString(&base.Timeline.Official.BearerToken, override.Timeline.Official.BearerToken)
	mergeString(&base.Timeline.Environment.AccountID, override.Timeline.Environment.AccountID)
	mergeString(&base.Timeline.Environment.BearerToken, override.Timeline.Environment.BearerToken)
	mergeInt(&base.Timeline.MaxResults, override.Timeline.MaxResults)
	mergeInt(&base.Timeline.Attempts, override.Timeline.Attempts)
	mergeDuration(&base.Timeline.RateLimitStep, override.Timeline.RateLimitStep)
	mergeDuration(&base.Timeline.Interval, override.Timeline.Interval)

	mergeString(&base.Scraper.ListingURL, override.Scraper.ListingURL)
	mergeInt(&base.Scraper.TitleAttempts, override.Scraper.TitleAttempts)

	mergeDuration(&base.HTTP.Timeout, override.HTTP.Timeout)
	mergeDuration(&base.HTTP.Pacing, override.HTTP.Pacing)
	mergeInt(&base.HTTP.Retries, override.HTTP.Retries)

	mergeDuration(&base.Relay.TickDelay, override.Relay.TickDelay)
	mergeString(&base.Metrics.Addr, override.Metrics.Addr)

	return base
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func defaultConfig() Config {
	return Config{
		Service:  defaultServiceName,
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"},
		Discord:  DiscordConfig{CommandPrefix: "-"},
		Timeline: TimelineConfig{
			MaxResults:    5,
			Attempts:      5,
			RateLimitStep: 200 * time.Second,
			Interval:      15 * time.Minute,
		},
		Scraper: ScraperConfig{ListingURL: defaultListingURL, TitleAttempts: 5},
		HTTP:    HTTPConfig{Timeout: 30 * time.Second, Pacing: time.Second, Retries: 5},
		Relay:   RelayConfig{TickDelay: 60 * time.Second},
	}
}
