package sheets

import (
	"fmt"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/budget"
)

// BuildRowMap maps each non-empty column-A label to the 0-based index of the first
// row carrying it.
func BuildRowMap(rows [][]any) map[string]int {
	m := make(map[string]int, len(rows))
	for i, row := range rows {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		label := strings.TrimSpace(fmt.Sprint(row[0]))
		if label == "" {
			continue
		}
		if _, seen := m[label]; !seen {
			m[label] = i
		}
	}
	return m
}

// TabTitle renders a monthly tab name. Supported placeholders are {Month} (January),
// {Mon} (Jan), {MM} (01) and {Year} (2026).
func TabTitle(template string, month budget.Month) string {
	r := strings.NewReplacer(
		"{Month}", month.Month.String(),
		"{Mon}", month.Month.String()[:3],
		"{MM}", fmt.Sprintf("%02d", int(month.Month)),
		"{Year}", fmt.Sprintf("%d", month.Year),
	)
	return r.Replace(template)
}

// seedRows builds the initial layout of a new monthly tab: one row per category and
// a final derived row summing them.
func seedRows(categories []string, derivedLabel string) [][]any {
	rows := make([][]any, 0, len(categories)+1)
	for _, c := range categories {
		rows = append(rows, []any{c, ""})
	}
	n := max(len(categories), 1)
	rows = append(rows, []any{derivedLabel, fmt.Sprintf("=SUM(B1:B%d)", n)})
	return rows
}
