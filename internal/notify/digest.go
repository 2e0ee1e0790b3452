package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// digestWindow is how far back the weekly digest looks.
const digestWindow = 7 * 24 * time.Hour

// digestMaxAlerts caps the findings listed in one digest message.
const digestMaxAlerts = 50

// DigestScheduler runs the weekly digest job on a cron schedule.
type DigestScheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	repo    domain.Repository
	manager *Manager
}

// NewDigestScheduler creates the scheduler. spec is a six-field cron
// expression with seconds, e.g. "0 0 8 * * 1" for Monday 08:00.
func NewDigestScheduler(logger *slog.Logger, repo domain.Repository, manager *Manager, spec string) (*DigestScheduler, error) {
	s := &DigestScheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     logger,
		repo:    repo,
		manager: manager,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("register digest job: %w", err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *DigestScheduler) Start() {
	s.cron.Start()
	s.log.Info("digest scheduler started")
}

// Stop stops the scheduler, waiting for a running job to finish.
func (s *DigestScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("digest scheduler stopped")
}

// RunNow executes the digest immediately, outside the schedule.
func (s *DigestScheduler) RunNow() {
	s.run()
}

func (s *DigestScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	since := time.Now().Add(-digestWindow)

	summary, err := s.repo.DashboardMetrics(ctx, since)
	if err != nil {
		s.log.Error("digest metrics query failed", "error", err)
		return
	}
	alerts, err := s.repo.ListAlerts(ctx, since, digestMaxAlerts)
	if err != nil {
		s.log.Error("digest alert query failed", "error", err)
		return
	}

	s.manager.SendDigest(ctx, summary, alerts)
	s.log.Info("weekly digest sent", "alerts", len(alerts))
}
