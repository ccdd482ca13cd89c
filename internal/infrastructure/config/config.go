package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all gateway configuration
type Config struct {
	App            AppConfig
	Log            LogConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Event          EventConfig
	SyncLog        SyncLogConfig
	CRM            CRMConfig
	Finance        FinanceConfig
	Ledger         LedgerConfig
	Inbound        InboundConfig
	Reconciliation ReconciliationConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// MigrationsPath is where versioned SQL migrations live; empty disables
	// startup migration
	MigrationsPath string
}

// DSN builds the postgres connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventConfig holds outbox processor configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// SyncLogConfig holds sync log guard settings
type SyncLogConfig struct {
	// StaleAfter is how long an attempt may stay pending before the sweep
	// force-fails it
	StaleAfter time.Duration
	// SweepInterval is how often the stale sweep runs
	SweepInterval time.Duration
}

// CRMConfig holds CRM adapter settings
type CRMConfig struct {
	Enabled      bool
	APIBaseURL   string
	AccountsURL  string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
	PageSize     int
	MaxInFlight  int
}

// FinanceConfig holds finance adapter settings
type FinanceConfig struct {
	Enabled        bool
	APIBaseURL     string
	AccountsURL    string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	OrganizationID string
	Timeout        time.Duration
	PageSize       int
	MaxInFlight    int
}

// LedgerConfig holds ledger client settings
type LedgerConfig struct {
	Enabled bool
	// SubmitURL is the HCS REST bridge endpoint for message submission
	SubmitURL string
	// MirrorURL is the mirror node base URL for finality observation
	MirrorURL string
	APIKey    string
	TopicID   string
	Timeout   time.Duration
	// FinalityTimeout bounds the wait for consensus, independent of the
	// submission call's timeout
	FinalityTimeout time.Duration
	PollInterval    time.Duration
}

// InboundConfig holds inbound pull settings
type InboundConfig struct {
	Enabled      bool
	PullInterval time.Duration
	// Overlap is re-pulled behind the watermark to cover clock skew; the
	// overlap is deduplicated downstream
	Overlap time.Duration
}

// ReconciliationConfig holds reconciliation job settings
type ReconciliationConfig struct {
	Enabled  bool
	Interval time.Duration
	// Window is the trailing time window of settled transactions examined
	// per run
	Window time.Duration
	// LockTTL bounds the distributed single-runner lock
	LockTTL time.Duration
	// ReferencePrefixes are the internal reference conventions scanned for
	// in external transaction references (e.g. "INV-", "ORD-")
	ReferencePrefixes []string
}

// Load reads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gateway")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrationsPath:  v.GetString("database.migrations_path"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			CleanupInterval:  v.GetDuration("event.cleanup_interval"),
		},
		SyncLog: SyncLogConfig{
			StaleAfter:    v.GetDuration("synclog.stale_after"),
			SweepInterval: v.GetDuration("synclog.sweep_interval"),
		},
		CRM: CRMConfig{
			Enabled:      v.GetBool("crm.enabled"),
			APIBaseURL:   v.GetString("crm.api_base_url"),
			AccountsURL:  v.GetString("crm.accounts_url"),
			ClientID:     v.GetString("crm.client_id"),
			ClientSecret: v.GetString("crm.client_secret"),
			RefreshToken: v.GetString("crm.refresh_token"),
			Timeout:      v.GetDuration("crm.timeout"),
			PageSize:     v.GetInt("crm.page_size"),
			MaxInFlight:  v.GetInt("crm.max_in_flight"),
		},
		Finance: FinanceConfig{
			Enabled:        v.GetBool("finance.enabled"),
			APIBaseURL:     v.GetString("finance.api_base_url"),
			AccountsURL:    v.GetString("finance.accounts_url"),
			ClientID:       v.GetString("finance.client_id"),
			ClientSecret:   v.GetString("finance.client_secret"),
			RefreshToken:   v.GetString("finance.refresh_token"),
			OrganizationID: v.GetString("finance.organization_id"),
			Timeout:        v.GetDuration("finance.timeout"),
			PageSize:       v.GetInt("finance.page_size"),
			MaxInFlight:    v.GetInt("finance.max_in_flight"),
		},
		Ledger: LedgerConfig{
			Enabled:         v.GetBool("ledger.enabled"),
			SubmitURL:       v.GetString("ledger.submit_url"),
			MirrorURL:       v.GetString("ledger.mirror_url"),
			APIKey:          v.GetString("ledger.api_key"),
			TopicID:         v.GetString("ledger.topic_id"),
			Timeout:         v.GetDuration("ledger.timeout"),
			FinalityTimeout: v.GetDuration("ledger.finality_timeout"),
			PollInterval:    v.GetDuration("ledger.poll_interval"),
		},
		Inbound: InboundConfig{
			Enabled:      v.GetBool("inbound.enabled"),
			PullInterval: v.GetDuration("inbound.pull_interval"),
			Overlap:      v.GetDuration("inbound.overlap"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:           v.GetBool("reconciliation.enabled"),
			Interval:          v.GetDuration("reconciliation.interval"),
			Window:            v.GetDuration("reconciliation.window"),
			LockTTL:           v.GetDuration("reconciliation.lock_ttl"),
			ReferencePrefixes: v.GetStringSlice("reconciliation.reference_prefixes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults applies default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sync-gateway")
	v.SetDefault("app.env", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gateway")
	v.SetDefault("database.dbname", "gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("event.processor_enabled", true)
	v.SetDefault("event.batch_size", 100)
	v.SetDefault("event.poll_interval", 5*time.Second)
	v.SetDefault("event.cleanup_enabled", true)
	v.SetDefault("event.cleanup_retention", 7*24*time.Hour)
	v.SetDefault("event.cleanup_interval", time.Hour)

	v.SetDefault("synclog.stale_after", 10*time.Minute)
	v.SetDefault("synclog.sweep_interval", time.Minute)

	v.SetDefault("crm.enabled", true)
	v.SetDefault("crm.api_base_url", "https://www.zohoapis.com/crm/v2")
	v.SetDefault("crm.accounts_url", "https://accounts.zoho.com")
	v.SetDefault("crm.timeout", 30*time.Second)
	v.SetDefault("crm.page_size", 200)
	v.SetDefault("crm.max_in_flight", 4)

	v.SetDefault("finance.enabled", true)
	v.SetDefault("finance.api_base_url", "https://books.zoho.com/api/v3")
	v.SetDefault("finance.accounts_url", "https://accounts.zoho.com")
	v.SetDefault("finance.timeout", 30*time.Second)
	v.SetDefault("finance.page_size", 200)
	v.SetDefault("finance.max_in_flight", 4)

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.timeout", 30*time.Second)
	v.SetDefault("ledger.finality_timeout", 5*time.Minute)
	v.SetDefault("ledger.poll_interval", 5*time.Second)

	v.SetDefault("inbound.enabled", true)
	v.SetDefault("inbound.pull_interval", 5*time.Minute)
	v.SetDefault("inbound.overlap", time.Minute)

	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.interval", time.Hour)
	v.SetDefault("reconciliation.window", 48*time.Hour)
	v.SetDefault("reconciliation.lock_ttl", 10*time.Minute)
	v.SetDefault("reconciliation.reference_prefixes", []string{"INV-", "ORD-"})
}

// validate checks configuration consistency
func (c *Config) validate() error {
	if c.SyncLog.StaleAfter <= 0 {
		return fmt.Errorf("synclog.stale_after must be positive")
	}
	if c.Ledger.Enabled {
		if c.Ledger.FinalityTimeout <= 0 {
			return fmt.Errorf("ledger.finality_timeout must be positive")
		}
		if c.Ledger.TopicID == "" && c.App.Env == "production" {
			return fmt.Errorf("ledger.topic_id is required in production")
		}
	}
	if c.Reconciliation.Enabled && c.Reconciliation.Window < c.Reconciliation.Interval {
		return fmt.Errorf("reconciliation.window must cover at least one interval")
	}
	return nil
}
