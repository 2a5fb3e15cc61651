package notify

import (
	"context"

	"plantfleet/internal/fleet/application"
)

// MultiNotifier dispatches condition events to multiple notifiers.
type MultiNotifier struct {
	notifiers []application.ConditionNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...application.ConditionNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event application.ConditionEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
