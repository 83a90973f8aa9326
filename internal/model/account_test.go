package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalancesFromAccounts(t *testing.T) {
	accounts := []Account{
		{ID: "a", BalanceRole: RoleNone, BalanceCurrent: decimal.NewFromInt(999)},
		{ID: "b", BalanceRole: RoleBank, BalanceCurrent: decimal.RequireFromString("1200.50")},
		{ID: "c", BalanceRole: RoleCC1, BalanceCurrent: decimal.NewFromInt(300)},
		{ID: "d", BalanceRole: RoleBank, BalanceCurrent: decimal.NewFromInt(1)},
	}

	got := BalancesFromAccounts(accounts)

	assert.True(t, got.Bank.Equal(decimal.RequireFromString("1200.50")), "first bank account wins")
	assert.True(t, got.CC1.Equal(decimal.NewFromInt(300)))
	assert.True(t, got.CC2.IsZero(), "unmapped role resolves to zero")
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusNeedsReview.Valid())
	assert.False(t, TransactionStatus("archived").Valid())
	assert.True(t, PatternRegex.Valid())
	assert.False(t, PatternType("glob").Valid())
	assert.True(t, RoleNone.Valid())
	assert.False(t, BalanceRole("cc3").Valid())
}
