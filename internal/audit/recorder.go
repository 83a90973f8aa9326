// Package audit records decisions and external writes to the append-only audit log and
// optionally fans them out to a message broker.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/service"
)

// Sink accepts audit events.
type Sink interface {
	Append(ctx context.Context, eventType string, payload map[string]any) error
}

// Publisher forwards stored audit events to another system.
type Publisher interface {
	Publish(ctx context.Context, event model.AuditEvent) error
}

// Recorder writes events to the audit store and then to every publisher.
// Failures are logged with the full event so nothing disappears silently.
type Recorder struct {
	store      service.AuditStore
	logger     *slog.Logger
	now        func() time.Time
	publishers []Publisher
}

var _ Sink = (*Recorder)(nil)

// NewRecorder creates a recorder backed by store.
func NewRecorder(store service.AuditStore, logger *slog.Logger, publishers ...Publisher) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:      store,
		logger:     logger.With("component", "audit"),
		now:        time.Now,
		publishers: publishers,
	}
}

// Append records one event. The returned error reflects the primary store only;
// publisher failures are logged.
func (r *Recorder) Append(ctx context.Context, eventType string, payload map[string]any) error {
	event := model.AuditEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		CreatedAt: r.now().UTC(),
	}

	var storeErr error
	if r.store != nil {
		if storeErr = r.store.AppendAudit(ctx, &event); storeErr != nil {
			r.logger.Error("failed to store audit event",
				"event_id", event.ID,
				"event_type", eventType,
				"payload", payload,
				"error", storeErr)
		}
	}

	for _, p := range r.publishers {
		if err := p.Publish(ctx, event); err != nil {
			r.logger.Warn("failed to publish audit event",
				"event_id", event.ID,
				"event_type", eventType,
				"error", err)
		}
	}

	return storeErr
}
