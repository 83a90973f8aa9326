package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceRole maps an account to one of the running-balance cells.
type BalanceRole string

// Balance roles.
const (
	RoleNone BalanceRole = ""
	RoleBank BalanceRole = "bank"
	RoleCC1  BalanceRole = "cc1"
	RoleCC2  BalanceRole = "cc2"
)

// BalanceRoles lists every assignable role in sheet order.
var BalanceRoles = []BalanceRole{RoleBank, RoleCC1, RoleCC2}

// Valid reports whether r is assignable (the empty role clears a mapping).
func (r BalanceRole) Valid() bool {
	switch r {
	case RoleNone, RoleBank, RoleCC1, RoleCC2:
		return true
	}
	return false
}

// Account is an upstream account with its latest known balance.
type Account struct {
	UpdatedAt      time.Time
	ID             string
	Name           string
	Mask           string
	Type           string
	BalanceRole    BalanceRole
	BalanceCurrent decimal.Decimal
}

// Balances holds the three running-balance values pushed to the spreadsheet.
type Balances struct {
	Bank decimal.Decimal
	CC1  decimal.Decimal
	CC2  decimal.Decimal
}

// BalancesFromAccounts picks the current balance of the first account mapped to each role.
// Roles without an account resolve to zero.
func BalancesFromAccounts(accounts []Account) Balances {
	var b Balances
	seen := make(map[BalanceRole]bool)
	for _, a := range accounts {
		if a.BalanceRole == RoleNone || seen[a.BalanceRole] {
			continue
		}
		seen[a.BalanceRole] = true
		switch a.BalanceRole {
		case RoleBank:
			b.Bank = a.BalanceCurrent
		case RoleCC1:
			b.CC1 = a.BalanceCurrent
		case RoleCC2:
			b.CC2 = a.BalanceCurrent
		}
	}
	return b
}
