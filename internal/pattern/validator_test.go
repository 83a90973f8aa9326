package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/model"
)

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		patternType model.PatternType
		wantErr     bool
	}{
		{name: "substring", pattern: "uber", patternType: model.PatternSubstring},
		{name: "valid regex", pattern: `^amzn\s+mktp`, patternType: model.PatternRegex},
		{name: "invalid regex", pattern: "(unclosed", patternType: model.PatternRegex, wantErr: true},
		{name: "empty pattern", pattern: "  ", patternType: model.PatternSubstring, wantErr: true},
		{name: "unknown type", pattern: "uber", patternType: "glob", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePattern(tt.pattern, tt.patternType)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.ErrorIs(t, ValidateRule(model.Rule{Pattern: "uber", PatternType: model.PatternSubstring}), ErrInvalidPattern)
}

func TestRuleFromTransaction(t *testing.T) {
	tests := []struct {
		name        string
		txn         model.Transaction
		category    string
		wantPattern string
		wantOK      bool
	}{
		{
			name:        "prefers merchant",
			txn:         model.Transaction{Merchant: "Swiggy", Description: "SWIGGY*ORDER 123"},
			category:    "Food",
			wantPattern: "Swiggy",
			wantOK:      true,
		},
		{
			name:        "falls back to description",
			txn:         model.Transaction{Description: "ACH RENT"},
			category:    "Rent",
			wantPattern: "ACH RENT",
			wantOK:      true,
		},
		{
			name:     "no text",
			txn:      model.Transaction{},
			category: "Rent",
		},
		{
			name: "no category",
			txn:  model.Transaction{Merchant: "Swiggy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RuleFromTransaction(tt.txn, tt.category, 1)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantPattern, got.Pattern)
			assert.Equal(t, model.PatternSubstring, got.PatternType)
			assert.Equal(t, 1, got.Priority)
			assert.True(t, got.Enabled)

			m, matched := MatchRule([]model.Rule{got}, tt.txn.Merchant, tt.txn.Description)
			assert.True(t, matched)
			assert.Equal(t, tt.category, m.Category)
		})
	}
}
