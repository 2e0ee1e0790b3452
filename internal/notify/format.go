package notify

import (
	"fmt"
	"strings"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// FormatAlert renders one alert as Telegram-safe HTML.
func FormatAlert(alert *domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", alert.Title)
	fmt.Fprintf(&b, "Risk score: <b>%d/10</b>\n", alert.RiskScore)
	fmt.Fprintf(&b, "%s\n", alert.Description)
	fmt.Fprintf(&b, "Affected records: %d\n", len(alert.AffectedRecords))
	fmt.Fprintf(&b, "Created: %s", alert.CreatedAt.Format("2006-01-02 15:04"))
	return b.String()
}

// FormatDigest renders the weekly summary. Alerts are listed newest first,
// the order ListAlerts returns them in.
func FormatDigest(summary *domain.DashboardMetrics, alerts []*domain.Alert) string {
	var b strings.Builder
	b.WriteString("<b>Weekly anomaly digest</b>\n\n")
	fmt.Fprintf(&b, "Alerts this week: %d\n", summary.TotalAlerts)
	fmt.Fprintf(&b, "Critical (score %d+): %d\n", domain.CriticalRiskScore, summary.CriticalAlerts)
	fmt.Fprintf(&b, "Investigated: %d (%.1f%%)\n", summary.InvestigatedAlerts, summary.InvestigationRate)

	if len(alerts) == 0 {
		b.WriteString("\nNo open findings. Nothing to review this week.")
		return b.String()
	}

	b.WriteString("\n<b>Findings</b>\n")
	for _, a := range alerts {
		marker := ""
		if a.Critical() {
			marker = " ⚠"
		}
		fmt.Fprintf(&b, "• [%d/10]%s %s: %s\n", a.RiskScore, marker, a.RuleType.Title(), a.Description)
	}
	return b.String()
}
