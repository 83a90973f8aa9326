package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// Table writes tab-aligned rows under a styled header.
type Table struct {
	w       *tabwriter.Writer
	columns int
}

// NewTable writes the header and a dashed rule.
func NewTable(w io.Writer, headers ...string) *Table {
	t := &Table{
		w:       tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		columns: len(headers),
	}

	styled := make([]string, len(headers))
	rules := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = TableHeaderStyle.Render(h)
		rules[i] = strings.Repeat("-", max(len(h), 4))
	}
	t.write(styled)
	t.write(rules)
	return t
}

// Row appends a row. Missing cells are left blank and extra cells are dropped.
func (t *Table) Row(cells ...string) {
	row := make([]string, t.columns)
	copy(row, cells)
	t.write(row)
}

// Flush writes buffered rows.
func (t *Table) Flush() error {
	return t.w.Flush()
}

func (t *Table) write(cells []string) {
	_, _ = fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

// Money formats an amount with two decimals, highlighting negatives.
func Money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.IsNegative() {
		return OverBudgetStyle.Render(s)
	}
	return s
}
