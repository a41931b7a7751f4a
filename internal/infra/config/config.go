package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Auth      AuthSettings      `mapstructure:"auth"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Mail      MailSettings      `mapstructure:"mail"`
	Session   SessionSettings   `mapstructure:"session"`
	Social    SocialSettings    `mapstructure:"social"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	Schema            string        `mapstructure:"schema"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the key-value store connection. KeyPrefix namespaces
// every ephemeral key (codes, counters, locks) written by the auth core.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the security event publisher. Publishing is disabled
// when no brokers are configured.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
	AuditTopic  string   `mapstructure:"audit_topic"`
}

// AuthSettings carries the code, lockout and validator knobs of the auth core.
type AuthSettings struct {
	CodeLength            int           `mapstructure:"code_length"`
	CodeTTL               time.Duration `mapstructure:"code_ttl"`
	CodeMaxAttempts       int           `mapstructure:"code_max_attempts"`
	ResetTokenTTL         time.Duration `mapstructure:"reset_token_ttl"`
	LockoutMaxFailed      int           `mapstructure:"lockout_max_failed"`
	LockoutDuration       time.Duration `mapstructure:"lockout_duration"`
	LockoutCounterWindow  time.Duration `mapstructure:"lockout_counter_window"`
	AutoReactivateOnLogin bool          `mapstructure:"auto_reactivate_on_login"`
	PasswordMinLength     int           `mapstructure:"password_min_length"`
}

// RateLimitSettings configures per-action budgets.
type RateLimitSettings struct {
	ResendMax    int           `mapstructure:"resend_max"`
	ResendWindow time.Duration `mapstructure:"resend_window"`
	ResetMax     int           `mapstructure:"reset_max"`
	ResetWindow  time.Duration `mapstructure:"reset_window"`
	LoginMax     int           `mapstructure:"login_max"`
	LoginWindow  time.Duration `mapstructure:"login_window"`
	OAuthMax     int           `mapstructure:"oauth_max"`
	OAuthWindow  time.Duration `mapstructure:"oauth_window"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type MailSettings struct {
	From      string        `mapstructure:"from"`
	FromName  string        `mapstructure:"from_name"`
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Brevo     BrevoSettings `mapstructure:"brevo"`
	SMTP      SMTPSettings  `mapstructure:"smtp"`
}

type BrevoSettings struct {
	APIKey  string        `mapstructure:"api_key"`
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type SessionSettings struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type SocialSettings struct {
	AssertionSecret string `mapstructure:"assertion_secret"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ALUMNI")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.schema",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.audit_topic",
		"auth.code_length",
		"auth.code_ttl",
		"auth.code_max_attempts",
		"auth.reset_token_ttl",
		"auth.lockout_max_failed",
		"auth.lockout_duration",
		"auth.lockout_counter_window",
		"auth.auto_reactivate_on_login",
		"auth.password_min_length",
		"rate_limit.resend_max",
		"rate_limit.resend_window",
		"rate_limit.reset_max",
		"rate_limit.reset_window",
		"rate_limit.login_max",
		"rate_limit.login_window",
		"rate_limit.oauth_max",
		"rate_limit.oauth_window",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"mail.from",
		"mail.from_name",
		"mail.workers",
		"mail.queue_size",
		"mail.brevo.api_key",
		"mail.brevo.api_url",
		"mail.brevo.timeout",
		"mail.smtp.host",
		"mail.smtp.port",
		"mail.smtp.username",
		"mail.smtp.password",
		"mail.smtp.use_tls",
		"session.secret",
		"session.ttl",
		"session.issuer",
		"social.assertion_secret",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects envelopes the auth core cannot operate with.
func (c *AppConfig) Validate() error {
	if c.Auth.CodeLength < 4 || c.Auth.CodeLength > 12 {
		return fmt.Errorf("config: auth.code_length must be between 4 and 12, got %d", c.Auth.CodeLength)
	}
	if c.Auth.CodeMaxAttempts <= 0 {
		return fmt.Errorf("config: auth.code_max_attempts must be positive")
	}
	if c.Auth.LockoutMaxFailed <= 0 {
		return fmt.Errorf("config: auth.lockout_max_failed must be positive")
	}
	if c.Auth.CodeTTL <= 0 || c.Auth.LockoutDuration <= 0 || c.Auth.LockoutCounterWindow <= 0 {
		return fmt.Errorf("config: auth durations must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "alumni-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "alumni")
	v.SetDefault("postgres.password", "alumni_password")
	v.SetDefault("postgres.database", "alumni")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.schema", "accounts")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "alumni")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "alumni")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.audit_topic", "security.events")

	v.SetDefault("auth.code_length", 6)
	v.SetDefault("auth.code_ttl", "15m")
	v.SetDefault("auth.code_max_attempts", 3)
	v.SetDefault("auth.reset_token_ttl", "10m")
	v.SetDefault("auth.lockout_max_failed", 5)
	v.SetDefault("auth.lockout_duration", "30m")
	v.SetDefault("auth.lockout_counter_window", "60m")
	v.SetDefault("auth.auto_reactivate_on_login", true)
	v.SetDefault("auth.password_min_length", 8)

	v.SetDefault("rate_limit.resend_max", 5)
	v.SetDefault("rate_limit.resend_window", "15m")
	v.SetDefault("rate_limit.reset_max", 3)
	v.SetDefault("rate_limit.reset_window", "15m")
	v.SetDefault("rate_limit.login_max", 10)
	v.SetDefault("rate_limit.login_window", "15m")
	v.SetDefault("rate_limit.oauth_max", 10)
	v.SetDefault("rate_limit.oauth_window", "1m")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("mail.from", "noreply@alumni.local")
	v.SetDefault("mail.from_name", "Alumni Network")
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 256)
	v.SetDefault("mail.brevo.api_url", "https://api.brevo.com/v3/smtp/email")
	v.SetDefault("mail.brevo.timeout", "30s")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.use_tls", true)

	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.issuer", "alumni-auth")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ALUMNI_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
