// Package notify delivers alert notifications to auditors over Telegram and
// email, immediately for critical alerts and weekly as a digest.
package notify

import (
	"context"
	"log/slog"

	"github.com/ivossos/fiscalwatch/internal/domain"
	"github.com/ivossos/fiscalwatch/internal/metrics"
)

// Notifier delivers one message over a single channel.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
	Name() string
}

// Manager fans one notification out to every configured channel. A channel
// failure is logged and counted but never blocks the others or the caller.
type Manager struct {
	log       *slog.Logger
	notifiers []Notifier
	collector *metrics.Collector
}

// NewManager creates a notification manager.
func NewManager(logger *slog.Logger, collector *metrics.Collector, notifiers ...Notifier) *Manager {
	return &Manager{
		log:       logger,
		notifiers: notifiers,
		collector: collector,
	}
}

// AlertCreated pushes a critical alert to every channel. Non-critical alerts
// wait for the weekly digest.
func (m *Manager) AlertCreated(ctx context.Context, alert *domain.Alert) {
	if !alert.Critical() {
		return
	}
	m.broadcast(ctx, "FiscalWatch: "+alert.Title, FormatAlert(alert))
}

// SendDigest pushes the weekly summary to every channel.
func (m *Manager) SendDigest(ctx context.Context, summary *domain.DashboardMetrics, alerts []*domain.Alert) {
	m.broadcast(ctx, "FiscalWatch: Weekly Digest", FormatDigest(summary, alerts))
}

func (m *Manager) broadcast(ctx context.Context, subject, body string) {
	for _, n := range m.notifiers {
		err := n.Send(ctx, subject, body)
		if m.collector != nil {
			m.collector.RecordNotification(n.Name(), err)
		}
		if err != nil {
			m.log.Error("notification failed",
				"channel", n.Name(),
				"subject", subject,
				"error", err)
			continue
		}
		m.log.Info("notification sent", "channel", n.Name(), "subject", subject)
	}
}
