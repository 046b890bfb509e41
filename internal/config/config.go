package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"exam-runner" validate:"required"`
	Env                     string        `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production test"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080" validate:"required,hostname_port"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s" validate:"gt=0"`

	Backend  Backend
	Session  Session
	Redis    Redis
	Postgres Postgres
	CORS     CORS
}

// Backend describes the exam REST backend.
type Backend struct {
	BaseURL      string        `env:"BACKEND_BASE_URL" envDefault:"https://edux.site/api" validate:"required,url"`
	AssetBaseURL string        `env:"BACKEND_ASSET_BASE_URL" envDefault:"https://edux.site/" validate:"required,url"`
	ReadTimeout  time.Duration `env:"BACKEND_READ_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// Session groups exam session behavior.
type Session struct {
	TickInterval      time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"1s" validate:"gt=0"`
	NavigatorPageSize int           `env:"NAVIGATOR_PAGE_SIZE" envDefault:"10" validate:"gte=1,lte=100"`
	EmptyAnswers      string        `env:"SUBMIT_EMPTY_ANSWERS" envDefault:"omit" validate:"oneof=omit placeholder"`
	NonceField        string        `env:"SUBMIT_NONCE_FIELD" envDefault:"attempt_nonce"`
	Retention         time.Duration `env:"SESSION_RETENTION" envDefault:"30m" validate:"gt=0"`
	ReapInterval      time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"1m" validate:"gt=0"`
}

// Redis is optional; an empty address disables the catalog cache and submission guard.
type Redis struct {
	Addr       string        `env:"REDIS_ADDR" envDefault:"" validate:"omitempty,hostname_port"`
	DB         int           `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
	PoolSize   int           `env:"REDIS_POOL_SIZE" envDefault:"20" validate:"gte=1"`
	CatalogTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"2m" validate:"gt=0"`
	ReceiptTTL time.Duration `env:"SUBMISSION_RECEIPT_TTL" envDefault:"24h" validate:"gt=0"`
	LockTTL    time.Duration `env:"SUBMISSION_LOCK_TTL" envDefault:"2m" validate:"gt=0"`
}

// Enabled reports whether Redis is configured.
func (r Redis) Enabled() bool { return r.Addr != "" }

// Postgres is optional; an empty host disables the receipt journal.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432" validate:"gt=0,lte=65535"`
	User     string `env:"PG_USER" envDefault:"" validate:"required_with=Host"`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:"" validate:"required_with=Host"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10" validate:"gte=1"`
}

// Enabled reports whether Postgres is configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// DSN renders a keyword/value connection string for a single connection.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// ConnString is DSN plus pgxpool settings.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.DSN(), p.MaxConns)
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600" validate:"gte=0"`
}

// Load parses environment variables into App config and validates it.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).StructCtx(ctx, cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
