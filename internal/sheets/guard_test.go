package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/common"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    Range
		wantErr bool
	}{
		{in: "B2", want: Range{StartRow: 2, StartCol: 2, EndRow: 2, EndCol: 2}},
		{in: "'Running Balance'!D2:D4", want: Range{Sheet: "Running Balance", StartRow: 2, StartCol: 4, EndRow: 4, EndCol: 4}},
		{in: "'It''s'!A1", want: Range{Sheet: "It's", StartRow: 1, StartCol: 1, EndRow: 1, EndCol: 1}},
		{in: "Sheet1!AA10", want: Range{Sheet: "Sheet1", StartRow: 10, StartCol: 27, EndRow: 10, EndCol: 27}},
		{in: "B:B", want: Range{StartRow: 1, StartCol: 2, EndRow: unbounded, EndCol: 2}},
		{in: "3:3", want: Range{StartRow: 3, StartCol: 1, EndRow: 3, EndCol: unbounded}},
		{in: "", wantErr: true},
		{in: "B0", wantErr: true},
		{in: "B5:B2", wantErr: true},
		{in: "A1:B2:C3", wantErr: true},
		{in: "'Open!A1", wantErr: true},
		{in: "1A", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCellHelpers(t *testing.T) {
	assert.Equal(t, "A", ColumnName(1))
	assert.Equal(t, "Z", ColumnName(26))
	assert.Equal(t, "AA", ColumnName(27))
	assert.Equal(t, "B12", Cell(12, 2))
	assert.Equal(t, "'Bob''s'!B2", Qualify("Bob's", "B2"))
}

func TestCheck(t *testing.T) {
	balance := Protection{Sheet: "Running Balance", Cells: []string{"D3"}}
	monthly := Protection{Sheet: "January 2026", Rows: []int{2}}

	tests := []struct {
		name    string
		updates []ValueRange
		wantErr bool
	}{
		{
			name: "balance cells allowed",
			updates: []ValueRange{
				{Range: "'Running Balance'!B2", Values: [][]any{{1}}},
				{Range: "'Running Balance'!D2", Values: [][]any{{1}}},
				{Range: "'Running Balance'!D4", Values: [][]any{{1}}},
			},
		},
		{
			name:    "reserved cell",
			updates: []ValueRange{{Range: "'Running Balance'!D3", Values: [][]any{{1}}}},
			wantErr: true,
		},
		{
			name:    "range containing reserved cell",
			updates: []ValueRange{{Range: "'Running Balance'!D2:D4", Values: [][]any{{1}, {2}, {3}}}},
			wantErr: true,
		},
		{
			name:    "values spilling into reserved cell",
			updates: []ValueRange{{Range: "'Running Balance'!D2", Values: [][]any{{1}, {2}}}},
			wantErr: true,
		},
		{
			name:    "same cell on another sheet",
			updates: []ValueRange{{Range: "'Other'!D3", Values: [][]any{{1}}}},
		},
		{
			name:    "unqualified range is treated as any sheet",
			updates: []ValueRange{{Range: "D3", Values: [][]any{{1}}}},
			wantErr: true,
		},
		{
			name:    "derived row",
			updates: []ValueRange{{Range: "'January 2026'!B2", Values: [][]any{{15}}}},
			wantErr: true,
		},
		{
			name:    "category row",
			updates: []ValueRange{{Range: "'January 2026'!B3", Values: [][]any{{7}}}},
		},
		{
			name:    "unparseable",
			updates: []ValueRange{{Range: "!!", Values: [][]any{{1}}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.updates, balance, monthly)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var inv *common.InvariantViolation
			require.ErrorAs(t, err, &inv)
		})
	}
}
