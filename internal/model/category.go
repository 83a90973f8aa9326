package model

import "github.com/shopspring/decimal"

// CategoryBudget is static reference data: a category and its monthly allowance.
type CategoryBudget struct {
	Name          string
	MonthlyBudget decimal.Decimal
}

// DerivedRowLabel labels the formula row seeded at the bottom of every monthly tab.
const DerivedRowLabel = "SUM"

// DefaultBudgets is the built-in category list used when configuration supplies none.
var DefaultBudgets = []CategoryBudget{
	{Name: "Rent + Utilities", MonthlyBudget: decimal.NewFromInt(2050)},
	{Name: "Food", MonthlyBudget: decimal.NewFromInt(500)},
	{Name: "Subscriptions", MonthlyBudget: decimal.NewFromInt(110)},
	{Name: "Party", MonthlyBudget: decimal.NewFromInt(300)},
	{Name: "Flights", MonthlyBudget: decimal.NewFromInt(300)},
	{Name: "Dates", MonthlyBudget: decimal.NewFromInt(200)},
	{Name: "Shopping (Clothes/Game/Save/Home/Misc)", MonthlyBudget: decimal.NewFromInt(100)},
	{Name: "Gas", MonthlyBudget: decimal.NewFromInt(150)},
	{Name: "Grocery", MonthlyBudget: decimal.NewFromInt(75)},
	{Name: "Gifts", MonthlyBudget: decimal.NewFromInt(100)},
	{Name: "Car(s) + Insurance", MonthlyBudget: decimal.NewFromInt(550)},
	{Name: "Gambling", MonthlyBudget: decimal.NewFromInt(20)},
	{Name: "Charity", MonthlyBudget: decimal.NewFromInt(20)},
	{Name: "Misc", MonthlyBudget: decimal.NewFromInt(75)},
	{Name: "Travel", MonthlyBudget: decimal.NewFromInt(100)},
}

// CategoryNames returns the names of budgets in order.
func CategoryNames(budgets []CategoryBudget) []string {
	names := make([]string, len(budgets))
	for i, b := range budgets {
		names[i] = b.Name
	}
	return names
}
