package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"cms-dispatch/internal/config"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Open builds the pool for the configured driver and pings it once.
func Open(cfg config.Config, opt Options) (*sqlx.DB, error) {
	dialect, err := DialectFor(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}

	if opt.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opt.MaxOpenConns)
	}
	if opt.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opt.MaxIdleConns)
	}
	if opt.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opt.ConnMaxLifetime)
	}

	if opt.PingTimeout <= 0 {
		opt.PingTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), opt.PingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func buildDSN(cfg config.Config) (string, error) {
	host := cfg.DB.Host
	port := cfg.DB.Port
	user := cfg.DB.User

	if host == "" {
		return "", errors.New("db.host is required")
	}
	if port <= 0 || port > 65535 {
		return "", errors.New("db.port is invalid")
	}
	if user == "" {
		return "", errors.New("db.user is required")
	}

	switch cfg.DB.Driver {
	case config.DBDriverMySQL:
		mc := mysql.NewConfig()
		mc.User = user
		mc.Passwd = cfg.DB.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
		mc.DBName = cfg.DB.Database
		if len(cfg.DB.Params) > 0 {
			mc.Params = make(map[string]string, len(cfg.DB.Params))
			for k, v := range cfg.DB.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil

	case config.DBDriverMSSQL:
		u := &url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(user, cfg.DB.Password),
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		}
		q := url.Values{}
		if cfg.DB.Database != "" {
			q.Set("database", cfg.DB.Database)
		}
		for k, v := range cfg.DB.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil

	default:
		return "", fmt.Errorf("unsupported driver: %q", cfg.DB.Driver)
	}
}

func TestConnection(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opt := DefaultOptions()
	if deadline, ok := ctx.Deadline(); ok {
		opt.PingTimeout = time.Until(deadline)
	}
	db, err := Open(cfg, opt)
	if err != nil {
		return err
	}
	return db.Close()
}
