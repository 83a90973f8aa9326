package budget

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// SummaryRow compares one category's spend to its budget.
type SummaryRow struct {
	Category  string
	Budget    decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
}

// Summary lists every budgeted category in budget order, followed by any spent
// category that has no budget.
func Summary(totals Totals, budgets []model.CategoryBudget) []SummaryRow {
	rows := make([]SummaryRow, 0, len(budgets)+len(totals))
	budgeted := make(map[string]bool, len(budgets))

	for _, b := range budgets {
		budgeted[b.Name] = true
		spent := totals[b.Name]
		rows = append(rows, SummaryRow{
			Category:  b.Name,
			Budget:    b.MonthlyBudget,
			Spent:     spent,
			Remaining: b.MonthlyBudget.Sub(spent),
		})
	}

	for _, name := range totals.Categories() {
		if budgeted[name] {
			continue
		}
		spent := totals[name]
		rows = append(rows, SummaryRow{
			Category:  name,
			Spent:     spent,
			Remaining: spent.Neg(),
		})
	}

	return rows
}

type csvRow struct {
	Category  string `csv:"category"`
	Budget    string `csv:"budget"`
	Spent     string `csv:"spent"`
	Remaining string `csv:"remaining"`
}

// WriteCSV renders summary rows as CSV with two-decimal amounts.
func WriteCSV(w io.Writer, rows []SummaryRow) error {
	out := make([]csvRow, len(rows))
	for i, r := range rows {
		out[i] = csvRow{
			Category:  r.Category,
			Budget:    r.Budget.StringFixed(2),
			Spent:     r.Spent.StringFixed(2),
			Remaining: r.Remaining.StringFixed(2),
		}
	}

	if err := gocsv.MarshalCSV(out, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}
