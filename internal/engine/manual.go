package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/pattern"
)

// ManualOverride is a user's correction of a transaction. Nil fields keep the current value.
type ManualOverride struct {
	Category   *string
	Status     *model.TransactionStatus
	CreateRule bool
}

// ApplyManual applies a user override, optionally creating a rule from the transaction's
// merchant (or description), and returns the updated transaction.
func (e *Engine) ApplyManual(ctx context.Context, externalID string, override ManualOverride) (model.Transaction, error) {
	txn, err := e.store.GetTransaction(ctx, externalID)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to load transaction %s: %w", externalID, err)
	}

	category := txn.Category
	if override.Category != nil {
		category = strings.TrimSpace(*override.Category)
		if category != "" && len(e.settings.Categories) > 0 && !slices.Contains(e.settings.Categories, category) {
			return model.Transaction{}, common.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
		}
	}

	status := txn.Status
	switch {
	case override.Status != nil:
		if !override.Status.Valid() {
			return model.Transaction{}, common.NewValidationError("status", fmt.Sprintf("unknown status %q", *override.Status))
		}
		status = *override.Status
	case override.Category != nil && category != "":
		status = model.StatusCategorized
	}

	if override.CreateRule && category == "" {
		return model.Transaction{}, common.NewValidationError("category", "a category is required to create a rule")
	}

	// Build the rule first so a rule that cannot exist rejects the whole override.
	var rule *model.Rule
	if override.CreateRule {
		r, err := manualRule(*txn, category)
		if err != nil {
			return model.Transaction{}, err
		}
		rule = &r
	}

	decision := model.Decision{
		Category: category,
		Status:   status,
		Source:   model.SourceManual,
	}
	if err := e.store.UpdateDecision(ctx, externalID, decision); err != nil {
		return model.Transaction{}, fmt.Errorf("failed to update transaction %s: %w", externalID, err)
	}

	txn.Category = category
	txn.Status = status
	txn.Source = model.SourceManual
	txn.Confidence = nil

	month := budget.MonthKey(txn.Date, e.settings.Location)
	e.record(ctx, model.EventTransactionUpdated, map[string]any{
		"transaction_id": externalID,
		"category":       category,
		"status":         string(status),
		"month":          month.Label,
		"create_rule":    override.CreateRule,
	})

	if rule != nil {
		if err := e.store.CreateRule(ctx, rule); err != nil {
			return *txn, fmt.Errorf("override saved but failed to create rule: %w", err)
		}
		e.record(ctx, model.EventRuleCreated, ruleCreatedPayload(*rule, externalID))
	}

	e.logger.Info("Applied manual override",
		"transaction_id", externalID,
		"category", category,
		"status", status,
		"create_rule", override.CreateRule)

	return *txn, nil
}

// manualRule builds the substring rule a manual override asks for.
func manualRule(txn model.Transaction, category string) (model.Rule, error) {
	rule, ok := pattern.RuleFromTransaction(txn, category, ManualRulePriority)
	if !ok {
		return model.Rule{}, common.NewValidationError("create_rule", "transaction has no merchant or description to match on")
	}
	if err := pattern.ValidateRule(rule); err != nil {
		return model.Rule{}, common.NewValidationError("create_rule", err.Error())
	}
	return rule, nil
}
