package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/amazon-catalog-parser/internal/assembler"
	"github.com/maltedev/amazon-catalog-parser/internal/database"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "UNREALON"
	DefaultEnvFile = "config.env"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Assembler AssemblerConfig `mapstructure:"assembler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ScraperConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	MaxPages     int           `mapstructure:"max_pages"`
	Backend      string        `mapstructure:"backend"`
	RateLimitMin time.Duration `mapstructure:"rate_limit_min"`
	RateLimitMax time.Duration `mapstructure:"rate_limit_max"`
	Adaptive     bool          `mapstructure:"adaptive"`
	UserAgent    string        `mapstructure:"user_agent"`
}

type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	TimezoneID     string        `mapstructure:"timezone"`
	Locale         string        `mapstructure:"locale"`
}

// DatabaseConfig is optional. Publishing is off when neither URL nor Host is set.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Stream       string        `mapstructure:"stream"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type AssemblerConfig struct {
	RequiredFields    []string `mapstructure:"required_fields"`
	DiscountTolerance int      `mapstructure:"discount_tolerance"`
	DefaultCurrency   string   `mapstructure:"default_currency"`
}

type StorageConfig struct {
	ResultsPath string `mapstructure:"results_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendHTTP    = "http"
	BackendBrowser = "browser"
)

// Load reads config.env when present, then the UNREALON_* environment.
// Nested keys map to env names with "_", e.g. UNREALON_SCRAPER_MAX_PAGES.
func Load() (*Config, error) {
	return LoadFile(DefaultEnvFile)
}

func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Assembler.RequiredFields = splitList(cfg.Assembler.RequiredFields)
	cfg.Scraper.Backend = strings.ToLower(strings.TrimSpace(cfg.Scraper.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "https://localhost:*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 150*time.Second)
	v.SetDefault("server.request_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("scraper.base_url", "https://www.amazon.com")
	v.SetDefault("scraper.max_pages", 2)
	v.SetDefault("scraper.backend", BackendHTTP)
	v.SetDefault("scraper.rate_limit_min", 2*time.Second)
	v.SetDefault("scraper.rate_limit_max", 5*time.Second)
	v.SetDefault("scraper.adaptive", true)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.max_retries", 3)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.locale", "en-US")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "catalog")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", database.DefaultTargetStream)
	v.SetDefault("redis.poll_interval", 5*time.Second)
	v.SetDefault("redis.batch_size", 100)

	v.SetDefault("assembler.required_fields", []string{})
	v.SetDefault("assembler.discount_tolerance", assembler.DefaultDiscountTolerance)
	v.SetDefault("assembler.default_currency", assembler.DefaultCurrency)

	v.SetDefault("storage.results_path", "system/results/results.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	if u, err := url.Parse(c.Scraper.BaseURL); err != nil || u.Scheme == "" || u.Hostname() == "" {
		return fmt.Errorf("scraper.base_url must be an absolute url, got %q", c.Scraper.BaseURL)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("scraper.max_pages must be at least 1")
	}
	if c.Scraper.RateLimitMin < 0 || c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("scraper.rate_limit_min must be between 0 and scraper.rate_limit_max")
	}
	if c.Scraper.Backend != BackendHTTP && c.Scraper.Backend != BackendBrowser {
		return fmt.Errorf("scraper.backend must be %q or %q, got %q", BackendHTTP, BackendBrowser, c.Scraper.Backend)
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be positive")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if _, err := c.AssemblerOptions(); err != nil {
		return err
	}
	return nil
}

// AssemblerOptions derives the immutable normalization options.
func (c *Config) AssemblerOptions() (assembler.Options, error) {
	return assembler.NewOptions(c.Assembler.RequiredFields, c.Assembler.DiscountTolerance, c.Assembler.DefaultCurrency)
}

func (c *Config) DatabaseEnabled() bool {
	return c.Database.URL != "" || c.Database.Host != ""
}

func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		URL:      c.Database.URL,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.Name,
		SSLMode:  c.Database.SSLMode,
		MaxConns: c.Database.MaxConns,
	}
}

// splitList accepts both real lists and a single comma separated env value.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
