package service

import (
	"context"

	"github.com/septivank/invoice-review/internal/mq"
)

// Notifier publishes review decisions to downstream consumers (ledger sync)
type Notifier interface {
	PublishDecision(ctx context.Context, event mq.DecisionEvent) error
}

// NoopNotifier drops decisions; used when no broker is configured
type NoopNotifier struct{}

// PublishDecision does nothing
func (NoopNotifier) PublishDecision(context.Context, mq.DecisionEvent) error {
	return nil
}
