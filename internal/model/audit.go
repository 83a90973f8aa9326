package model

import "time"

// Audit event types.
const (
	EventCategorizedByRule  = "categorized_by_rule"
	EventCategorizedByLLM   = "categorized_by_llm"
	EventLLMTransfer        = "llm_transfer"
	EventLLMLowConfidence   = "llm_low_confidence"
	EventNeedsReview        = "needs_review"
	EventRuleCreated        = "rule_created"
	EventTransactionUpdated = "transaction_updated"
	EventSheetsPush         = "sheets_push"
	EventSheetsPushFailed   = "sheets_push_failed"
	EventSyncCompleted      = "sync_completed"
	EventSyncFailed         = "sync_failed"
	EventCronError          = "cron_error"
)

// AuditEvent is an append-only record of a decision or external write.
type AuditEvent struct {
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
}
