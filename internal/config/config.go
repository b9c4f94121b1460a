package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Server   Server   `yaml:"server"`
	Twitter  Twitter  `yaml:"twitter"`
	Database Database `yaml:"database"`
	Poller   Poller   `yaml:"poller"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
	Archive  Archive  `yaml:"archive"`
}

// Archive holds S3/MinIO configuration for raw mention page archiving
type Archive struct {
	Enabled         bool   `yaml:"enabled" env:"ARCHIVE_ENABLED" env-default:"false"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"mentions"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Prefix          string `yaml:"prefix" env:"S3_PREFIX" env-default:"raw-mentions"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"60s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Twitter holds X API and OAuth client configuration
type Twitter struct {
	BaseURL      string `yaml:"base_url" env:"TWITTER_BASE_URL" env-default:"https://api.twitter.com"`
	TokenURL     string `yaml:"token_url" env:"TWITTER_TOKEN_URL" env-default:"https://api.twitter.com/2/oauth2/token"`
	ClientID     string `yaml:"client_id" env:"TWITTER_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"TWITTER_CLIENT_SECRET"`
	MaxResults   int    `yaml:"max_results" env:"TWITTER_MAX_RESULTS" env-default:"100"`
}

// Database holds database configuration
type Database struct {
	// PostgreSQL
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`

	// Connection pool settings
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DB_CONN_LIFETIME" env-default:"5m"`
}

// Poller holds mention polling and token refresh configuration
type Poller struct {
	Enabled        bool          `yaml:"enabled" env:"POLLER_ENABLED" env-default:"true"`
	TickInterval   time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL" env-default:"5m"`
	RateWindowMax  int           `yaml:"rate_window_max" env:"RATE_WINDOW_MAX" env-default:"50"`
	RateWindow     time.Duration `yaml:"rate_window_duration" env:"RATE_WINDOW_DURATION" env-default:"15m"`
	RefreshMargin  time.Duration `yaml:"token_refresh_margin" env:"TOKEN_REFRESH_MARGIN" env-default:"5m"`
	WorkerPoolSize int           `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE" env-default:"4"`
	AccountTimeout time.Duration `yaml:"account_timeout" env:"ACCOUNT_TIMEOUT" env-default:"2m"`
	InitialDelay   time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY" env-default:"10s"`

	// RefreshSchedule is a five-field cron spec; empty disables the job
	RefreshSchedule string        `yaml:"refresh_schedule" env:"REFRESH_SCHEDULE" env-default:"0 */2 * * *"`
	RefreshHorizon  time.Duration `yaml:"refresh_horizon" env:"REFRESH_HORIZON" env-default:"1h"`
}

// Logging holds log output configuration
type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"auto"`
}

// Metrics holds Prometheus endpoint configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Validate checks values that cleanenv cannot express
func (c Config) Validate() error {
	var errs []error

	p := c.Poller
	if p.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	if p.RateWindowMax <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW_MAX must be positive"))
	}
	if p.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW_DURATION must be positive"))
	}
	if p.RefreshMargin < 0 {
		errs = append(errs, errors.New("TOKEN_REFRESH_MARGIN must not be negative"))
	}
	if p.WorkerPoolSize <= 0 {
		errs = append(errs, errors.New("WORKER_POOL_SIZE must be positive"))
	}
	if p.AccountTimeout <= 0 {
		errs = append(errs, errors.New("ACCOUNT_TIMEOUT must be positive"))
	} else if p.TickInterval > 0 && p.AccountTimeout >= p.TickInterval {
		errs = append(errs, fmt.Errorf("ACCOUNT_TIMEOUT (%s) must be shorter than TICK_INTERVAL (%s)", p.AccountTimeout, p.TickInterval))
	}
	if p.InitialDelay < 0 {
		errs = append(errs, errors.New("INITIAL_DELAY must not be negative"))
	}
	if p.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(p.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("REFRESH_SCHEDULE: %w", err))
		}
	}
	if p.RefreshHorizon < p.RefreshMargin {
		errs = append(errs, errors.New("REFRESH_HORIZON must not be shorter than TOKEN_REFRESH_MARGIN"))
	}

	if c.Twitter.MaxResults < 5 || c.Twitter.MaxResults > 100 {
		errs = append(errs, errors.New("TWITTER_MAX_RESULTS must be between 5 and 100"))
	}

	switch c.Logging.Format {
	case "json", "text", "auto":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json, text or auto, got %q", c.Logging.Format))
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when archiving is enabled"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad loads configuration from environment and exits on error
func MustLoad() Config {
	// Load .env file if exists (for development)
	_ = godotenv.Load()

	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
