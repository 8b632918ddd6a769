package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sky-unifier/sky-unifier-go/internal/platform/env"
)

// ErrDisabled is returned by ConfigFromEnv when no database is configured.
var ErrDisabled = errors.New("DATABASE_URL is not set")

type Config struct {
	URL             string
	ApplicationName string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func ConfigFromEnv() (Config, error) {
	dsn := env.String("DATABASE_URL", "")
	if dsn == "" {
		return Config{}, ErrDisabled
	}

	// Every malformed setting is reported, not just the first.
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		v, err := env.Duration(key, def)
		errs = append(errs, err)
		return v
	}
	num := func(key string, def int) int {
		v, err := env.Int(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		URL:             dsn,
		ApplicationName: env.String("DATABASE_APPLICATION_NAME", "sky-unifier"),
		PingTimeout:     dur("DATABASE_PING_TIMEOUT", 2*time.Second),
		MaxOpenConns:    num("DATABASE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    num("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: dur("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime: dur("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("DATABASE_PING_TIMEOUT must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("DATABASE_MAX_OPEN_CONNS must be >= 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("DATABASE_MAX_IDLE_CONNS must be between 0 and DATABASE_MAX_OPEN_CONNS")
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("DATABASE_CONN_MAX_LIFETIME and DATABASE_CONN_MAX_IDLE_TIME must be >= 0")
	}
	return nil
}

// DSN returns URL with application_name set unless the URL already names one.
// Keyword/value connection strings are returned unchanged.
func (c Config) DSN() string {
	if c.ApplicationName == "" || !strings.Contains(c.URL, "://") {
		return c.URL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	q := u.Query()
	if q.Get("application_name") != "" {
		return c.URL
	}
	q.Set("application_name", c.ApplicationName)
	u.RawQuery = q.Encode()
	return u.String()
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
