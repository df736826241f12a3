package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cms-dispatch/internal/api"
	"cms-dispatch/internal/config"
	"cms-dispatch/internal/db"
	"cms-dispatch/internal/dispatch"
	"cms-dispatch/internal/logger"
)

type serverApp struct {
	cfg    config.Config
	log    *zap.Logger
	dbConn *sqlx.DB
	srv    *http.Server
	errCh  chan error
}

func (a *serverApp) Start() error {
	bootstrapLog := logger.NewStderr()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			bootstrapLog.Error("config not found; run `cmsctl config init` or set " + config.EnvConfigPath)
			return err
		}
		bootstrapLog.Error("failed to load config", zap.Error(err))
		return err
	}
	if err := cfg.Validate(); err != nil {
		bootstrapLog.Error("invalid config", zap.Error(err))
		return err
	}
	a.cfg = cfg

	log, err := logger.New(cfg)
	if err != nil {
		bootstrapLog.Error("logger init failed; using stderr", zap.Error(err))
		log = bootstrapLog
	}
	a.log = log

	if err := db.InstallDriverLoggers(log.Named("driver")); err != nil {
		log.Warn("driver logger install failed", zap.Error(err))
	}

	dbConn, err := db.Open(cfg, db.DefaultOptions())
	if err != nil {
		log.Error("db connection failed", zap.Error(err))
		a.Stop(context.Background())
		return err
	}
	a.dbConn = dbConn

	opt, err := dispatch.OptionsFromConfig(cfg)
	if err != nil {
		log.Error("dispatch options invalid", zap.Error(err))
		a.Stop(context.Background())
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.EnsureProcedures(ctx, dbConn, opt.Dialect, opt.PlainResolver, opt.FileResolver); err != nil {
		log.Warn("resolver procedures not verified", zap.Error(err))
	}

	srv, err := api.NewServer(api.Deps{
		Config: cfg,
		DB:     dbConn,
		Plain:  dispatch.New(dbConn, opt, log),
		File:   dispatch.NewFile(dbConn, opt, log),
		Log:    log,
	})
	if err != nil {
		log.Error("config validation error", zap.Error(err))
		a.Stop(context.Background())
		return err
	}
	a.srv = srv

	a.errCh = make(chan error, 1)
	go func() {
		a.errCh <- srv.ListenAndServe()
	}()

	log.Info("cms-dispatchd listening",
		zap.String("addr", srv.Addr),
		zap.String("driver", string(cfg.DB.Driver)))
	return nil
}

func (a *serverApp) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.srv != nil {
		_ = a.srv.Shutdown(ctx)
	}
	if a.dbConn != nil {
		_ = a.dbConn.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *serverApp) Errors() <-chan error {
	return a.errCh
}

func (a *serverApp) Logger() *zap.Logger {
	return a.log
}
