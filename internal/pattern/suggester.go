package pattern

import (
	"strings"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// RuleFromTransaction builds a substring rule that would match future transactions
// from the same merchant. The merchant is preferred over the description. It returns
// false when the transaction carries no usable text.
func RuleFromTransaction(txn model.Transaction, category string, priority int) (model.Rule, bool) {
	text := strings.TrimSpace(txn.Merchant)
	if text == "" {
		text = strings.TrimSpace(txn.Description)
	}
	if text == "" || strings.TrimSpace(category) == "" {
		return model.Rule{}, false
	}

	return model.Rule{
		Name:        "Rule for " + text,
		Pattern:     text,
		PatternType: model.PatternSubstring,
		Category:    category,
		Priority:    priority,
		Enabled:     true,
		Origin:      model.OriginUser,
	}, true
}
