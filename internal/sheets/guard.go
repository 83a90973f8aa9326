package sheets

import (
	"fmt"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// Protection names cells and whole rows of one sheet that must never be written.
type Protection struct {
	Sheet string
	Cells []string
	Rows  []int
}

// Check rejects the batch if any update could overwrite a protected cell or row.
// Updates without a sheet name are treated as targeting every sheet. An unparseable
// range is rejected because it cannot be proven safe.
func Check(updates []ValueRange, protections ...Protection) error {
	for _, u := range updates {
		r, err := ParseRange(u.Range)
		if err != nil {
			return &common.InvariantViolation{Range: u.Range, Reason: err.Error()}
		}
		r = r.Extent(u.Values)

		for _, p := range protections {
			if r.Sheet != "" && !strings.EqualFold(r.Sheet, p.Sheet) {
				continue
			}
			for _, cell := range p.Cells {
				c, err := ParseRange(cell)
				if err != nil {
					return &common.InvariantViolation{Range: u.Range, Reason: fmt.Sprintf("bad protected cell %q", cell)}
				}
				if r.Contains(c.StartRow, c.StartCol) {
					return &common.InvariantViolation{
						Range:  u.Range,
						Reason: fmt.Sprintf("covers reserved cell %s", Qualify(p.Sheet, cell)),
					}
				}
			}
			for _, row := range p.Rows {
				if row >= r.StartRow && row <= r.EndRow {
					return &common.InvariantViolation{
						Range:  u.Range,
						Reason: fmt.Sprintf("covers derived row %d of %s", row, p.Sheet),
					}
				}
			}
		}
	}
	return nil
}
