package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cms-dispatch/internal/api/handlers"
	"cms-dispatch/internal/api/middleware"
	"cms-dispatch/internal/api/utils"
	"cms-dispatch/internal/config"
	"cms-dispatch/internal/db"
	"cms-dispatch/internal/files"
	"cms-dispatch/internal/metrics"
)

type Deps struct {
	Config config.Config
	DB     *sqlx.DB
	Plain  handlers.PlainDispatcher
	File   handlers.FileDispatcher
	Log    *zap.Logger
}

func NewServer(deps Deps) (*http.Server, error) {
	addr := strings.TrimSpace(deps.Config.APIListen)
	if err := validateListenAddr(addr); err != nil {
		return nil, err
	}

	router, err := NewRouter(deps)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}, nil
}

func NewRouter(deps Deps) (http.Handler, error) {
	cfg := deps.Config
	if deps.Plain == nil || deps.File == nil {
		return nil, errors.New("dispatchers are required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" && strings.TrimSpace(cfg.ServiceToken) == "" {
		return nil, errors.New("jwt secret or serviceToken is required")
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	dialect, err := db.DialectFor(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}

	auth := middleware.AuthConfig{
		JWTSecret:    cfg.JWT.Secret,
		Cookie:       cfg.JWT.Cookie,
		ServiceToken: cfg.ServiceToken,
	}
	notice := handlers.NoticeDeps{
		Plain: deps.Plain,
		File:  deps.File,
		Uploads: files.Limits{
			MaxFiles:    cfg.Dispatch.MaxFilesPerUpload,
			MaxFileSize: cfg.Dispatch.MaxFileSize,
		},
		MaxResultSize: cfg.Dispatch.MaxResultSize,
		Log:           log.Named("notice"),
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler { return middleware.Logging(log.Named("http"), next) })
	r.Use(chimw.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/api/health", handlers.NewHealthHandler(deps.DB, dialect,
		[]string{cfg.Dispatch.PlainResolver, cfg.Dispatch.FileResolver}, log.Named("health")))

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return middleware.Auth(auth, next) })

		r.Post("/api/dispatch/{rptCd}", handlers.NewDispatchHandler(deps.Plain, log.Named("dispatch")))

		r.Route("/api/notice", func(r chi.Router) {
			r.Post("/list", handlers.NewNoticeListHandler(notice))
			r.Post("/save", handlers.NewNoticeSaveHandler(notice))
			r.Post("/delete", handlers.NewNoticeDeleteHandler(notice))
			r.Post("/filelist", handlers.NewNoticeFileListHandler(notice))
			r.Post("/filesave", handlers.NewNoticeFileSaveHandler(notice))
			r.Post("/filedelete", handlers.NewNoticeFileDeleteHandler(notice))
			r.Post("/filedownload", handlers.NewNoticeFileDownloadHandler(notice))
		})
	})

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(methodNotAllowedHandler)
	return r, nil
}

func validateListenAddr(addr string) error {
	if addr == "" {
		return errors.New("apiListen is required")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.New("apiListen must be in host:port format")
	}
	if host == "" {
		return errors.New("apiListen host is required")
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return errors.New("apiListen port is invalid")
	}

	return nil
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, http.StatusNotFound, "Not found", "NOT_FOUND")
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED")
}
