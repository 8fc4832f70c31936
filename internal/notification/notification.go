package notification

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Event describes a completed wallet transaction for downstream consumers.
type Event struct {
	TransactionID string
	UserID        string
	AssetID       string
	Type          string
	Amount        decimal.Decimal
}

// Notifier publishes transaction events to downstream systems.
type Notifier interface {
	TransactionCompleted(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger. It stands in for a
// real message broker until one is wired.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) TransactionCompleted(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("transaction completed",
		"transaction_id", event.TransactionID,
		"user_id", event.UserID,
		"asset_id", event.AssetID,
		"type", event.Type,
		"amount", event.Amount.String(),
	)
	return nil
}
