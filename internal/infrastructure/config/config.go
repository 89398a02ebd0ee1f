package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

// Config holds all client configuration
type Config struct {
	App       AppConfig
	Backend   BackendConfig
	Auth      AuthConfig
	Form      FormConfig
	Catalog   CatalogConfig
	Session   SessionConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	HTTP      HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// BackendConfig describes the accounting backend the client talks to
type BackendConfig struct {
	BaseURL       string `validate:"required,url"`
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 disables limiting
	Burst         int
	MaxRetries    int `validate:"gte=0,lte=10"`
	RetryDelay    time.Duration
	UserAgent     string
	TLSSkipVerify bool
}

// AuthConfig holds session guard timing
type AuthConfig struct {
	PollInterval  time.Duration
	RefreshBefore time.Duration
}

// FormConfig holds banner lifetimes
type FormConfig struct {
	SuccessTTL time.Duration
	ErrorTTL   time.Duration
}

// CatalogConfig overrides the backend operation names bound to each kind
type CatalogConfig struct {
	Income              string
	Expense             string
	Transfer            string
	IssueInvoice        string
	IssueExpenseInvoice string
}

// SessionConfig selects the durable credential store
type SessionConfig struct {
	Driver string `validate:"oneof=sqlite postgres"`
	DSN    string `validate:"required"`
}

// RedisConfig holds the optional shared reference-cache tier
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// StorageConfig holds document storage and share-link settings
type StorageConfig struct {
	TempDir      string
	ShareEnabled bool
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Prefix       string
	UsePathStyle bool
	LinkTTL      time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 `validate:"gte=0,lte=1"`
	ServiceName       string
	Insecure          bool
	LogsEnabled       bool   // export zap records over OTLP
	LogsLevel         string // minimum exported level
}

// HTTPConfig holds entryd server settings
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration with this priority, highest first:
//  1. environment variables with the ENTRY_ prefix (ENTRY_BACKEND_BASE_URL),
//     including those declared in a .env file of the working directory
//  2. config.toml from ., ./config or $HOME/.entry
//  3. built-in defaults
func Load() (*Config, error) {
	loadDotEnv()
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.entry")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// LoadFile reads configuration from an explicit file, still honouring env overrides.
func LoadFile(path string) (*Config, error) {
	loadDotEnv()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return FromViper(v)
}

// loadDotEnv exports .env entries that are not already set in the environment.
// A missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

// FromViper builds the config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Backend: BackendConfig{
			BaseURL:       v.GetString("backend.base_url"),
			Timeout:       v.GetDuration("backend.timeout"),
			RateLimit:     v.GetFloat64("backend.rate_limit"),
			Burst:         v.GetInt("backend.burst"),
			MaxRetries:    v.GetInt("backend.max_retries"),
			RetryDelay:    v.GetDuration("backend.retry_delay"),
			UserAgent:     v.GetString("backend.user_agent"),
			TLSSkipVerify: v.GetBool("backend.tls_skip_verify"),
		},
		Auth: AuthConfig{
			PollInterval:  v.GetDuration("auth.poll_interval"),
			RefreshBefore: v.GetDuration("auth.refresh_before"),
		},
		Form: FormConfig{
			SuccessTTL: v.GetDuration("form.success_ttl"),
			ErrorTTL:   v.GetDuration("form.error_ttl"),
		},
		Catalog: CatalogConfig{
			Income:              v.GetString("catalog.income"),
			Expense:             v.GetString("catalog.expense"),
			Transfer:            v.GetString("catalog.transfer"),
			IssueInvoice:        v.GetString("catalog.issue_invoice"),
			IssueExpenseInvoice: v.GetString("catalog.issue_expense_invoice"),
		},
		Session: SessionConfig{
			Driver: v.GetString("session.driver"),
			DSN:    v.GetString("session.dsn"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			TTL:       v.GetDuration("redis.ttl"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Storage: StorageConfig{
			TempDir:      v.GetString("storage.temp_dir"),
			ShareEnabled: v.GetBool("storage.share_enabled"),
			Bucket:       v.GetString("storage.bucket"),
			Region:       v.GetString("storage.region"),
			Endpoint:     v.GetString("storage.endpoint"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			Prefix:       v.GetString("storage.prefix"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			LinkTTL:      v.GetDuration("storage.link_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsLevel:         v.GetString("telemetry.logs_level"),
		},
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
	}

	// sampling_ratio 0 is a legal explicit value, so only default it when unset
	if !v.IsSet("telemetry.sampling_ratio") {
		cfg.Telemetry.SamplingRatio = 1.0
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "entry"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8000"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = 5
	}
	if cfg.Backend.RetryDelay == 0 {
		cfg.Backend.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Backend.UserAgent == "" {
		cfg.Backend.UserAgent = "entry-client/1.0"
	}
	if cfg.Auth.PollInterval == 0 {
		cfg.Auth.PollInterval = 7 * time.Minute
	}
	if cfg.Auth.RefreshBefore == 0 {
		cfg.Auth.RefreshBefore = 2 * time.Minute
	}
	if cfg.Form.SuccessTTL == 0 {
		cfg.Form.SuccessTTL = 3 * time.Second
	}
	if cfg.Form.ErrorTTL == 0 {
		cfg.Form.ErrorTTL = 3 * time.Second
	}
	if cfg.Session.Driver == "" {
		cfg.Session.Driver = "sqlite"
	}
	if cfg.Session.DSN == "" && cfg.Session.Driver == "sqlite" {
		cfg.Session.DSN = "entry-session.db"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 10 * time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "entry:ref:"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "invoices/"
	}
	if cfg.Storage.LinkTTL == 0 {
		cfg.Storage.LinkTTL = 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8090"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// longer than backend.timeout so a slow backend call still gets answered
		cfg.HTTP.WriteTimeout = cfg.Backend.Timeout + 15*time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

func (c *Config) validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout cannot be negative")
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit cannot be negative")
	}
	if c.Auth.RefreshBefore >= c.Auth.PollInterval*10 {
		return fmt.Errorf("auth.refresh_before (%s) is implausibly large for auth.poll_interval (%s)",
			c.Auth.RefreshBefore, c.Auth.PollInterval)
	}
	if c.Storage.ShareEnabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.share_enabled is set")
	}
	if c.App.Env == "production" && c.Backend.TLSSkipVerify {
		return fmt.Errorf("backend.tls_skip_verify must be false in production")
	}
	if err := c.OperationCatalog().Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// OperationCatalog builds the operation catalog with the configured name overrides.
func (c *Config) OperationCatalog() reference.Catalog {
	return reference.NewCatalog(map[reference.OperationKind]string{
		reference.KindIncome:              c.Catalog.Income,
		reference.KindExpense:             c.Catalog.Expense,
		reference.KindTransfer:            c.Catalog.Transfer,
		reference.KindIssueInvoice:        c.Catalog.IssueInvoice,
		reference.KindIssueExpenseInvoice: c.Catalog.IssueExpenseInvoice,
	})
}

// Addr returns host:port of the redis tier.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
