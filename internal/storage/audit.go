package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// AppendAudit writes an audit event. Events are never updated or deleted.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, event *model.AuditEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAuditEvent(event); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.ID, event.EventType, string(data), formatTime(event.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit events, newest first.
func (s *SQLiteStorage) ListAudit(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, created_at
		FROM audit_log
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			event            model.AuditEvent
			payload, created string
		)
		if err := rows.Scan(&event.ID, &event.EventType, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload %s: %w", event.ID, err)
		}
		if event.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return events, nil
}
