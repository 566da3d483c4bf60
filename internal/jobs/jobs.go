// Package jobs runs periodic maintenance next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"wgprov/internal/logs"
	"wgprov/internal/pool"
	"wgprov/internal/provision"
)

// Reconciler is the part of the orchestrator the scheduler drives.
type Reconciler interface {
	Reconcile(ctx context.Context, prune bool) (provision.ReconcileReport, error)
	PoolStats(ctx context.Context) (pool.Stats, error)
}

type Config struct {
	ReconcileSpec string // "@every 5m"; пусто = выключено
	Prune         bool
	StatsSpec     string // обновление метрик пула
	Timeout       time.Duration
}

type Scheduler struct {
	c   *cron.Cron
	r   Reconciler
	cfg Config
	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

func New(r Reconciler, cfg Config) (*Scheduler, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		c:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		r:      r,
		cfg:    cfg,
		log:    logs.Logger.WithField("component", "jobs"),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.ReconcileSpec != "" {
		if _, err := s.c.AddFunc(cfg.ReconcileSpec, s.reconcile); err != nil {
			cancel()
			return nil, fmt.Errorf("reconcile schedule %q: %w", cfg.ReconcileSpec, err)
		}
	}
	if cfg.StatsSpec != "" {
		if _, err := s.c.AddFunc(cfg.StatsSpec, s.stats); err != nil {
			cancel()
			return nil, fmt.Errorf("pool stats schedule %q: %w", cfg.StatsSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.log.WithField("entries", len(s.c.Entries())).Info("scheduler started")
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rep, err := s.r.Reconcile(ctx, s.cfg.Prune)
	if err != nil {
		s.log.WithError(err).Error("scheduled reconcile failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"dur":     time.Since(start).String(),
		"rebound": rep.Rebound,
		"pruned":  rep.Pruned,
		"errors":  len(rep.Errors),
	}).Debug("scheduled reconcile done")
}

func (s *Scheduler) stats() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()
	if _, err := s.r.PoolStats(ctx); err != nil {
		s.log.WithError(err).Warn("pool stats refresh failed")
	}
}
