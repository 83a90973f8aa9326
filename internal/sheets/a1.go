package sheets

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const unbounded = math.MaxInt32

// Range is a parsed A1 range. Rows and columns are 1-based and inclusive.
type Range struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

var refPattern = regexp.MustCompile(`^([A-Za-z]*)([0-9]*)$`)

// ParseRange parses ranges such as "B2", "'Running Balance'!D2:D4", "B:B" or "3:3".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}

	var r Range
	cells := s
	if i := strings.LastIndex(s, "!"); i >= 0 {
		sheet, err := unquoteSheet(s[:i])
		if err != nil {
			return Range{}, fmt.Errorf("range %q: %w", s, err)
		}
		r.Sheet = sheet
		cells = s[i+1:]
	}

	parts := strings.Split(cells, ":")
	if len(parts) > 2 {
		return Range{}, fmt.Errorf("range %q: too many separators", s)
	}

	startCol, startRow, err := parseRef(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	endCol, endRow := startCol, startRow
	if len(parts) == 2 {
		if endCol, endRow, err = parseRef(parts[1]); err != nil {
			return Range{}, fmt.Errorf("range %q: %w", s, err)
		}
	}

	// A missing row or column spans the whole dimension.
	r.StartCol, r.EndCol = span(startCol, endCol)
	r.StartRow, r.EndRow = span(startRow, endRow)
	if r.StartCol > r.EndCol || r.StartRow > r.EndRow {
		return Range{}, fmt.Errorf("range %q: end precedes start", s)
	}
	return r, nil
}

func span(start, end int) (int, int) {
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = unbounded
	}
	return start, end
}

func parseRef(ref string) (int, int, error) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, 0, fmt.Errorf("invalid cell reference %q", ref)
	}

	col := 0
	for _, ch := range strings.ToUpper(m[1]) {
		col = col*26 + int(ch-'A'+1)
	}

	row := 0
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid row in %q", ref)
		}
		row = n
	}
	return col, row, nil
}

func unquoteSheet(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		if len(s) < 2 || !strings.HasSuffix(s, "'") {
			return "", fmt.Errorf("unterminated sheet name %s", s)
		}
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
	}
	return s, nil
}

// Extent grows r to cover values written from its top-left corner.
func (r Range) Extent(values [][]any) Range {
	if n := r.StartRow + len(values) - 1; n > r.EndRow {
		r.EndRow = n
	}
	width := 0
	for _, row := range values {
		width = max(width, len(row))
	}
	if n := r.StartCol + width - 1; n > r.EndCol {
		r.EndCol = n
	}
	return r
}

// Contains reports whether the cell at row and col lies inside r.
func (r Range) Contains(row, col int) bool {
	return row >= r.StartRow && row <= r.EndRow && col >= r.StartCol && col <= r.EndCol
}

// ColumnName converts a 1-based column index to letters.
func ColumnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// Cell formats a 1-based row and column as an A1 reference.
func Cell(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row)
}

// Qualify prefixes a cell or range with a quoted sheet name.
func Qualify(sheet, ref string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + ref
}
