package service

import (
	"context"

	alertdomain "github.com/profitlens/profitlens/internal/alert/domain"
	"go.uber.org/zap"
)

// LogNotifier writes alerts to the structured log. It stands in for real
// channels (email, webhooks) in deployments that have none configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) alertdomain.Notifier {
	return &LogNotifier{log: log.Named("alert.notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, alert alertdomain.MarginAlert) {
	n.log.Info("alert notification",
		zap.String("alert_id", alert.ID.String()),
		zap.String("org_id", alert.OrgID.String()),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("dimension", string(alert.Dimension)),
		zap.String("dimension_key", alert.DimensionKey),
		zap.String("margin_cents", alert.MarginCents.String()),
		zap.Int64("margin_bps", alert.MarginBps),
	)
}
