package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config se arma en tres capas: defaults -> YAML (CONFIG_FILE) -> env.
// El env siempre gana, así el mismo archivo sirve para dev y prod.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Plans    PlansConfig    `yaml:"plans"`
	Channels ChannelsConfig `yaml:"channels"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// DispatchTimeout acota cada dispatch async (todos los canales).
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DBConfig struct {
	DSN         string `yaml:"dsn"` // vacío = in-memory
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"` // vacío = lock en memoria, sin push
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`
}

type AuthConfig struct {
	OdinBaseURL string `yaml:"odin_base_url"` // vacío = modo dev (X-Debug-User-ID)
	OdinAPIKey  string `yaml:"odin_api_key"`
}

type PlansConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	AllowAll bool          `yaml:"allow_all"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type ChannelsConfig struct {
	SendGrid SendGridConfig `yaml:"sendgrid"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Push     PushConfig     `yaml:"push"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type PushConfig struct {
	RequireSubscriber bool `yaml:"require_subscriber"`
}

type JobsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Specs en formato cron estándar o descriptores ("@every 1m").
	ReminderSpec string `yaml:"reminder_spec"`
	MissedSpec   string `yaml:"missed_spec"`
	// MissedGrace: cuánto después de next_reminder_at se da un dose por perdido.
	MissedGrace time.Duration `yaml:"missed_grace"`
	BatchSize   int           `yaml:"batch_size"`
}

func Default() Config {
	return Config{
		App: AppConfig{
			Name:            "medication-reminder",
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
			DispatchTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Redis: RedisConfig{
			LockTTL:  10 * time.Second,
			LockWait: 5 * time.Second,
		},
		Plans: PlansConfig{CacheTTL: time.Minute},
		Jobs: JobsConfig{
			Enabled:      true,
			ReminderSpec: "@every 1m",
			MissedSpec:   "@every 5m",
			MissedGrace:  time.Hour,
			BatchSize:    200,
		},
	}
}

// Load lee .env (si existe), luego CONFIG_FILE (si está seteado) y por último el env.
func Load() (Config, error) {
	// .env es opcional; en prod las variables vienen del entorno.
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile aplica un YAML sobre la config actual (solo los campos presentes).
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.App.Name, "APP_NAME")
	setString(&c.App.Port, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	setString(&c.DB.DSN, "DB_DSN")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Auth.OdinBaseURL, "ODIN_BASE_URL")
	setString(&c.Auth.OdinAPIKey, "ODIN_API_KEY")

	setString(&c.Plans.BaseURL, "PLANS_FEATURES_BASE_URL")
	setString(&c.Plans.APIKey, "PLANS_FEATURES_API_KEY")

	setString(&c.Channels.SendGrid.APIKey, "SENDGRID_API_KEY")
	setString(&c.Channels.SendGrid.FromEmail, "SENDGRID_FROM_EMAIL")
	setString(&c.Channels.SendGrid.FromName, "SENDGRID_FROM_NAME")
	setString(&c.Channels.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.Channels.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.Channels.Twilio.From, "TWILIO_FROM")
	setString(&c.Channels.Gateway.BaseURL, "DEVICE_GATEWAY_URL")
	setString(&c.Channels.Gateway.APIKey, "DEVICE_GATEWAY_API_KEY")

	setString(&c.Jobs.ReminderSpec, "REMINDER_CRON")
	setString(&c.Jobs.MissedSpec, "MISSED_CRON")

	var errs []error
	errs = append(errs,
		setBool(&c.DB.AutoMigrate, "DB_AUTO_MIGRATE"),
		setInt(&c.Redis.DB, "REDIS_DB"),
		setBool(&c.Plans.AllowAll, "ALLOW_ALL_CAPABILITIES"),
		setBool(&c.Channels.Push.RequireSubscriber, "PUSH_REQUIRE_SUBSCRIBER"),
		setBool(&c.Jobs.Enabled, "JOBS_ENABLED"),
		setInt(&c.Jobs.BatchSize, "JOBS_BATCH_SIZE"),
		setDuration(&c.App.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setDuration(&c.App.DispatchTimeout, "DISPATCH_TIMEOUT"),
		setDuration(&c.Redis.LockTTL, "LOCK_TTL"),
		setDuration(&c.Redis.LockWait, "LOCK_WAIT"),
		setDuration(&c.Plans.CacheTTL, "PLANS_CACHE_TTL"),
		setDuration(&c.Jobs.MissedGrace, "MISSED_GRACE"),
	)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.App.Port) == "" {
		errs = append(errs, errors.New("app.port required"))
	} else if _, err := strconv.Atoi(c.App.Port); err != nil {
		errs = append(errs, fmt.Errorf("app.port must be numeric: %q", c.App.Port))
	}

	if c.Jobs.Enabled {
		if _, err := cron.ParseStandard(c.Jobs.ReminderSpec); err != nil {
			errs = append(errs, fmt.Errorf("jobs.reminder_spec: %w", err))
		}
		if _, err := cron.ParseStandard(c.Jobs.MissedSpec); err != nil {
			errs = append(errs, fmt.Errorf("jobs.missed_spec: %w", err))
		}
	}
	if c.Jobs.MissedGrace < 0 {
		errs = append(errs, errors.New("jobs.missed_grace must be >= 0"))
	}

	tw := c.Channels.Twilio
	if n := countSet(tw.AccountSID, tw.AuthToken, tw.From); n > 0 && n < 3 {
		errs = append(errs, errors.New("channels.twilio: account_sid, auth_token and from are required together"))
	}
	sg := c.Channels.SendGrid
	if n := countSet(sg.APIKey, sg.FromEmail); n == 1 {
		errs = append(errs, errors.New("channels.sendgrid: api_key and from_email are required together"))
	}
	if c.Auth.OdinBaseURL != "" && c.Auth.OdinAPIKey == "" {
		errs = append(errs, errors.New("auth.odin_api_key required when odin_base_url is set"))
	}

	return errors.Join(errs...)
}

func countSet(vals ...string) int {
	n := 0
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
