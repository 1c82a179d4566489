// Package scheduler runs the periodic maintenance jobs of the daemon.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

// Reaper fails agreements stuck in processing.
type Reaper interface {
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Resender retries invitation emails that have not gone out yet.
type Resender interface {
	ResendPending(ctx context.Context, limit int) (int, error)
}

type Config struct {
	ReapStaleSpec string
	ResendSpec    string
	StaleAfter    time.Duration
	ResendBatch   int
}

// ConfigFrom maps the scheduler and pipeline sections.
func ConfigFrom(c *common.Config) Config {
	return Config{
		ReapStaleSpec: c.Scheduler.ReapStaleSpec,
		ResendSpec:    c.Scheduler.ResendInvSpec,
		StaleAfter:    c.Pipeline.StaleAfter,
	}
}

type Scheduler struct {
	cfg      Config
	reaper   Reaper
	resender Resender
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a scheduler. A nil job dependency or an empty spec leaves that job out.
func New(cfg Config, reaper Reaper, resender Resender, logger *slog.Logger) *Scheduler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.ResendBatch <= 0 {
		cfg.ResendBatch = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		reaper:   reaper,
		resender: resender,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the configured jobs and starts the cron loop. Jobs run with
// ctx, so cancelling it aborts in-flight work.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := 0
	if s.reaper != nil && s.cfg.ReapStaleSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReapStaleSpec, func() { s.ReapStale(ctx) }); err != nil {
			return common.NewAppError(common.CodeConfiguration, fmt.Sprintf("invalid reap schedule %q", s.cfg.ReapStaleSpec), err)
		}
		jobs++
	}
	if s.resender != nil && s.cfg.ResendSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ResendSpec, func() { s.ResendInvitations(ctx) }); err != nil {
			return common.NewAppError(common.CodeConfiguration, fmt.Sprintf("invalid resend schedule %q", s.cfg.ResendSpec), err)
		}
		jobs++
	}
	if jobs == 0 {
		s.logger.Info("scheduler.idle")
		return nil
	}
	s.cron.Start()
	s.logger.Info("scheduler.started", "jobs", jobs, "reap_spec", s.cfg.ReapStaleSpec, "resend_spec", s.cfg.ResendSpec)
	return nil
}

// Stop stops scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler.stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler.stop_timeout")
	}
}

// ReapStale runs one reaper pass.
func (s *Scheduler) ReapStale(ctx context.Context) {
	start := time.Now()
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	n, err := s.reaper.ReapStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduler.reap.failed", "error", err)
		return
	}
	s.logger.Info("scheduler.reap.done", "reaped", n, "cutoff", cutoff, "elapsed_ms", time.Since(start).Milliseconds())
}

// ResendInvitations runs one re-send pass.
func (s *Scheduler) ResendInvitations(ctx context.Context) {
	start := time.Now()
	n, err := s.resender.ResendPending(ctx, s.cfg.ResendBatch)
	if err != nil {
		s.logger.Error("scheduler.resend.failed", "error", err)
		return
	}
	s.logger.Info("scheduler.resend.done", "sent", n, "elapsed_ms", time.Since(start).Milliseconds())
}
