package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"wgprov/config"
	"wgprov/internal/api"
	"wgprov/internal/audit"
	"wgprov/internal/db"
	"wgprov/internal/health"
	"wgprov/internal/jobs"
	"wgprov/internal/keygen"
	"wgprov/internal/logs"
	"wgprov/internal/metrics"
	"wgprov/internal/middleware"
	"wgprov/internal/pool"
	"wgprov/internal/provision"
	"wgprov/internal/repo"
	"wgprov/internal/secrets"
	"wgprov/internal/wgsync"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	httpServer *http.Server

	svc     *provision.Service
	metrics *metrics.Metrics
	audit   *audit.Recorder
	jobs    *jobs.Scheduler
	closers []io.Closer

	ctx    context.Context
	cancel context.CancelFunc
}

// Initialize is the init phase: everything here completes before the
// server accepts provisioning requests.
func (a *App) Initialize(ctx context.Context, cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	if err := logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	}); err != nil {
		return err
	}

	/* 2) DB */
	if key := a.cfg.Database.SecretKey; key != "" {
		sealer, err := secrets.NewSealer(key)
		if err != nil {
			return err
		}
		secrets.Install(sealer)
	} else {
		logs.Logger.Warn("database.secret_key is empty, private keys are stored in plain text")
	}
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, dbOptions(a.cfg))
	if err != nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	a.db = d

	/* 3) Ключи, схема, интерфейс, пул */
	keys, err := keygen.New(a.cfg.WireGuard.Keygen, a.cfg.WireGuard.WGBinary, a.cfg.WireGuard.ToolTimeout)
	if err != nil {
		return err
	}
	boot, err := provision.Bootstrap(ctx, a.db, keys, bootstrapConfig(a.cfg))
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	tool, closer, err := newTool(a.cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.metrics = metrics.New()
	a.audit = audit.NewRecorder(repo.NewAuditStore(a.db), a.cfg.Provisioning.AuditTimeout)
	a.svc = provision.New(provision.Deps{
		Pool:      pool.New(a.db),
		Keys:      keys,
		Peers:     repo.NewPeerStore(a.db),
		Sync:      wgsync.New(tool, wgsync.WithTimeout(a.cfg.WireGuard.ToolTimeout), wgsync.WithObserver(a.metrics.ObserveTool)),
		Interface: boot.Interface,
		Audit:     a.audit,
		Metrics:   a.metrics,
	}, provision.Options{
		CompensationTimeout: a.cfg.Provisioning.CompensationTimeout,
		Client:              clientOptions(a.cfg),
	})

	if a.cfg.Provisioning.ReconcileOnStart {
		rep, err := a.svc.Reconcile(ctx, a.cfg.Provisioning.ReconcilePrune)
		if err != nil {
			// интерфейс может ещё не подняться; процесс продолжает работу
			logs.Logger.WithError(err).Warn("startup reconcile failed")
		} else if len(rep.Errors) > 0 {
			logs.Logger.WithField("errors", rep.Errors).Warn("startup reconcile left drift")
		}
	}
	if _, err := a.svc.PoolStats(ctx); err != nil {
		logs.Logger.WithError(err).Warn("pool stats")
	}

	if a.jobs, err = jobs.New(a.svc, jobsConfig(a.cfg)); err != nil {
		return err
	}

	/* 4) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)
	if a.cfg.Metrics.Enabled {
		a.Router.Use(middleware.Metrics(a.metrics))
		a.Router.Handle(a.cfg.Metrics.Path, a.metrics.Handler()).Methods(http.MethodGet)
	}

	/* 5) Health */
	health.RegisterRoutesWithDB(a.Router, a.db, func(context.Context) error {
		_, err := a.svc.Interface()
		return err
	})

	/* 6) API */
	api.RegisterRoutes(a.Router, a.cfg.Auth.SharedSecret, a.svc)

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigs:
			logs.Logger.Infof("shutdown signal: %s", s)
			a.cancel()
		case <-a.ctx.Done():
		}
	}()

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      a.cfg.WireGuard.ToolTimeout*3 + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.jobs.Start()

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			a.cancel()
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	a.Close(ctx)

	select {
	case err := <-errc:
		return fmt.Errorf("http server error: %w", err)
	default:
		return nil
	}
}

// Close stops background work and releases resources.
func (a *App) Close(ctx context.Context) {
	if a.jobs != nil {
		a.jobs.Stop(ctx)
	}
	if a.audit != nil {
		a.audit.Flush()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logs.Logger.Warnf("close: %v", err)
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
