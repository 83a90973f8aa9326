// Package engine decides the category of each transaction by combining user rules,
// an LLM categorizer and manual overrides, and records every decision.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/autobudgeter/internal/audit"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/pattern"
)

// Audit reasons attached to needs_review events.
const (
	ReasonLLMDisabled   = "llm_disabled"
	ReasonLLMError      = "llm_error"
	ReasonLowConfidence = "low_confidence"
	ReasonCommitFailed  = "commit_failed"
)

// ManualRulePriority is the priority given to rules created from a manual override.
const ManualRulePriority = 1

// Store is the persistence the engine needs.
type Store interface {
	GetTransaction(ctx context.Context, externalID string) (*model.Transaction, error)
	GetEnabledRules(ctx context.Context) ([]model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	UpdateDecision(ctx context.Context, externalID string, decision model.Decision) error
}

// Categorizer asks a named LLM provider for a category.
type Categorizer interface {
	Categorize(ctx context.Context, providerName string, input llm.Input) (llm.Result, error)
}

// Settings controls how decisions are made.
type Settings struct {
	Location              *time.Location
	LLMProvider           string
	Categories            []string
	ConfidenceThreshold   float64
	SuggestedRulePriority int
	Concurrency           int
	LLMEnabled            bool
}

// Engine orchestrates categorization.
type Engine struct {
	store       Store
	categorizer Categorizer
	sink        audit.Sink
	logger      *slog.Logger
	progress    func(done, total int)
	settings    Settings
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgress registers a callback invoked after each batch transaction completes.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// New creates an engine. The categorizer may be nil when the LLM is disabled.
func New(store Store, categorizer Categorizer, sink audit.Sink, settings Settings, opts ...Option) *Engine {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	e := &Engine{
		store:       store,
		categorizer: categorizer,
		sink:        sink,
		settings:    settings,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Categorize decides and commits the category of a single transaction.
func (e *Engine) Categorize(ctx context.Context, txn model.Transaction) (model.Decision, error) {
	rules, err := e.store.GetEnabledRules(ctx)
	if err != nil {
		return model.Decision{}, fmt.Errorf("failed to load rules: %w", err)
	}

	rs := newRuleSet(rules)
	return e.categorizeOne(ctx, rs, txn)
}

// categorizeOne runs the decision pipeline against the shared rule set and commits the result.
func (e *Engine) categorizeOne(ctx context.Context, rs *ruleSet, txn model.Transaction) (model.Decision, error) {
	out, err := e.decide(ctx, rs, txn)
	if err != nil {
		return model.Decision{}, err
	}

	if err := e.store.UpdateDecision(ctx, txn.ExternalID, out.decision); err != nil {
		return model.Decision{}, fmt.Errorf("failed to commit decision for %s: %w", txn.ExternalID, err)
	}

	e.auditDecision(ctx, txn, out)

	if out.suggestion != nil {
		e.createSuggestedRule(ctx, rs, txn, *out.suggestion)
	}

	return out.decision, nil
}

// outcome is a decision plus what the engine learned while making it.
type outcome struct {
	llmErr     error
	suggestion *model.Rule
	decision   model.Decision
}

// decide computes a decision without side effects on storage. A non-nil error means the
// context ended mid-decision and the transaction must stay untouched.
func (e *Engine) decide(ctx context.Context, rs *ruleSet, txn model.Transaction) (outcome, error) {
	if match, ok := rs.match(txn.Merchant, txn.Description); ok {
		return outcome{decision: model.Decision{
			Category: match.Category,
			Status:   model.StatusCategorized,
			Source:   model.SourceRule,
			RuleID:   match.RuleID,
		}}, nil
	}

	if !e.settings.LLMEnabled || e.categorizer == nil {
		return outcome{decision: needsReview(ReasonLLMDisabled)}, nil
	}

	result, err := e.categorizer.Categorize(ctx, e.settings.LLMProvider, llm.Input{
		Merchant:    txn.Merchant,
		Description: txn.Description,
		Amount:      txn.AmountSpend,
		Categories:  e.settings.Categories,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome{}, ctxErr
		}
		e.logger.Warn("LLM categorization failed",
			"transaction_id", txn.ExternalID,
			"error_kind", common.Kind(err),
			"error", err)
		return outcome{decision: needsReview(ReasonLLMError), llmErr: err}, nil
	}

	confidence := model.Float64Ptr(result.Confidence)

	if result.IsTransfer {
		return outcome{decision: model.Decision{
			Category:   result.Category,
			Status:     model.StatusTransfer,
			Source:     model.SourceLLM,
			Confidence: confidence,
			Reason:     result.ReasoningShort,
		}}, nil
	}

	if result.Confidence < e.settings.ConfidenceThreshold {
		return outcome{decision: model.Decision{
			Category:   result.Category,
			Status:     model.StatusNeedsReview,
			Source:     model.SourceLLM,
			Confidence: confidence,
			Reason:     ReasonLowConfidence,
		}}, nil
	}

	decision := model.Decision{
		Category:   result.Category,
		Status:     model.StatusCategorized,
		Source:     model.SourceLLM,
		Confidence: confidence,
		Reason:     result.ReasoningShort,
	}
	return outcome{decision: decision, suggestion: e.suggestedRule(txn, decision, result.SuggestedRule)}, nil
}

func needsReview(reason string) model.Decision {
	return model.Decision{
		Status: model.StatusNeedsReview,
		Source: model.SourceNone,
		Reason: reason,
	}
}

// suggestedRule converts an accepted LLM suggestion into a rule, or nil when there is
// nothing usable to create.
func (e *Engine) suggestedRule(txn model.Transaction, decision model.Decision, s llm.SuggestedRule) *model.Rule {
	if !s.CreateRule || s.Pattern == "" {
		return nil
	}

	category := s.Category
	if category == "" {
		category = decision.Category
	}
	patternType := model.PatternType(s.PatternType)
	if patternType == "" {
		patternType = model.PatternSubstring
	}

	rule := model.Rule{
		Name:        fmt.Sprintf("LLM rule for %s", s.Pattern),
		Pattern:     s.Pattern,
		PatternType: patternType,
		Category:    category,
		Priority:    e.settings.SuggestedRulePriority,
		Enabled:     true,
		Origin:      model.OriginLLM,
	}
	if err := pattern.ValidateRule(rule); err != nil {
		e.logger.Warn("Dropping invalid suggested rule",
			"transaction_id", txn.ExternalID,
			"pattern", s.Pattern,
			"pattern_type", s.PatternType,
			"error", err)
		return nil
	}
	return &rule
}

func (e *Engine) createSuggestedRule(ctx context.Context, rs *ruleSet, txn model.Transaction, rule model.Rule) {
	if err := e.store.CreateRule(ctx, &rule); err != nil {
		e.logger.Warn("Failed to create suggested rule",
			"transaction_id", txn.ExternalID,
			"pattern", rule.Pattern,
			"error", err)
		return
	}

	rs.add(rule)
	e.logger.Info("Created rule from LLM suggestion",
		"rule_id", rule.ID,
		"pattern", rule.Pattern,
		"category", rule.Category)
	e.record(ctx, model.EventRuleCreated, ruleCreatedPayload(rule, txn.ExternalID))
}

func (e *Engine) auditDecision(ctx context.Context, txn model.Transaction, out outcome) {
	d := out.decision
	payload := map[string]any{
		"transaction_id": txn.ExternalID,
		"status":         string(d.Status),
		"source":         string(d.Source),
	}
	if d.Category != "" {
		payload["category"] = d.Category
	}
	if d.Confidence != nil {
		payload["confidence"] = *d.Confidence
	}

	var eventType string
	switch {
	case d.Source == model.SourceRule:
		eventType = model.EventCategorizedByRule
		payload["rule_id"] = d.RuleID
	case d.Status == model.StatusTransfer:
		eventType = model.EventLLMTransfer
		payload["reasoning"] = d.Reason
	case d.Source == model.SourceLLM && d.Status == model.StatusNeedsReview:
		eventType = model.EventLLMLowConfidence
		payload["threshold"] = e.settings.ConfidenceThreshold
	case d.Source == model.SourceLLM:
		eventType = model.EventCategorizedByLLM
		payload["reasoning"] = d.Reason
	default:
		eventType = model.EventNeedsReview
		payload["reason"] = d.Reason
		if out.llmErr != nil {
			payload["error_kind"] = common.Kind(out.llmErr)
			payload["error"] = out.llmErr.Error()
		}
	}

	e.record(ctx, eventType, payload)
}

func ruleCreatedPayload(rule model.Rule, transactionID string) map[string]any {
	payload := map[string]any{
		"rule_id":      rule.ID,
		"name":         rule.Name,
		"pattern":      rule.Pattern,
		"pattern_type": string(rule.PatternType),
		"category":     rule.Category,
		"priority":     rule.Priority,
		"origin":       string(rule.Origin),
	}
	if transactionID != "" {
		payload["transaction_id"] = transactionID
	}
	return payload
}

// record appends an audit event. Audit failures never fail a decision.
func (e *Engine) record(ctx context.Context, eventType string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Append(context.WithoutCancel(ctx), eventType, payload); err != nil {
		e.logger.Error("Failed to record audit event",
			"event_type", eventType,
			"error", err)
	}
}

// ruleSet is the run-scoped rule view shared by batch workers. It is rebuilt when a
// suggested rule is created so later transactions in the same run see it.
type ruleSet struct {
	matcher *pattern.Matcher
	rules   []model.Rule
	mu      sync.RWMutex
}

func newRuleSet(rules []model.Rule) *ruleSet {
	return &ruleSet{
		rules:   rules,
		matcher: pattern.NewMatcher(rules),
	}
}

func (r *ruleSet) match(merchant, description string) (pattern.Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matcher.Match(merchant, description)
}

func (r *ruleSet) add(rule model.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	r.matcher = pattern.NewMatcher(r.rules)
}
