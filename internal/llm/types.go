package llm

import (
	"context"

	"github.com/shopspring/decimal"
)

// MaxReasoningLength bounds the reasoning_short field of a provider response.
const MaxReasoningLength = 120

// Input is the transaction context sent to a provider.
type Input struct {
	Merchant    string
	Description string
	Amount      decimal.Decimal
	Categories  []string
}

// SuggestedRule is a provider's proposal for a rule that would categorize similar transactions.
type SuggestedRule struct {
	Pattern     string
	PatternType string
	Category    string
	CreateRule  bool
}

// Result is a validated provider response.
type Result struct {
	Category       string
	ReasoningShort string
	SuggestedRule  SuggestedRule
	Confidence     float64
	IsTransfer     bool
}

// Provider categorizes a single transaction.
type Provider interface {
	Name() string
	Categorize(ctx context.Context, input Input) (Result, error)
}
