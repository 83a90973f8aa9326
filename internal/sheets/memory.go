package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// WriteCall records one BatchWrite made against a MemorySink.
type WriteCall struct {
	SpreadsheetID string
	Input         ValueInput
	Data          []ValueRange
}

type cellKey struct {
	row int
	col int
}

type workbook struct {
	tabs  map[string]map[cellKey]any
	order []string
}

// MemorySink is an in-memory Sink used for dry runs and tests.
type MemorySink struct {
	// FailWrite, when set, is consulted before each write is applied.
	FailWrite func(call WriteCall) error
	books     map[string]*workbook
	writes    []WriteCall
	mu        sync.Mutex
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory workbook store.
func NewMemorySink() *MemorySink {
	return &MemorySink{books: make(map[string]*workbook)}
}

func (m *MemorySink) book(id string) *workbook {
	b, ok := m.books[id]
	if !ok {
		b = &workbook{tabs: make(map[string]map[cellKey]any)}
		m.books[id] = b
	}
	return b
}

func (b *workbook) tab(title string) (map[cellKey]any, error) {
	if title == "" {
		if len(b.order) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		title = b.order[0]
	}
	for _, name := range b.order {
		if strings.EqualFold(name, title) {
			return b.tabs[name], nil
		}
	}
	return nil, fmt.Errorf("unable to parse range: sheet %q not found", title)
}

// BatchWrite implements Sink.
func (m *MemorySink) BatchWrite(_ context.Context, spreadsheetID string, input ValueInput, data []ValueRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := WriteCall{SpreadsheetID: spreadsheetID, Input: input, Data: append([]ValueRange(nil), data...)}
	m.writes = append(m.writes, call)
	if m.FailWrite != nil {
		if err := m.FailWrite(call); err != nil {
			return err
		}
	}

	b := m.book(spreadsheetID)
	for _, vr := range data {
		r, err := ParseRange(vr.Range)
		if err != nil {
			return err
		}
		tab, err := b.tab(r.Sheet)
		if err != nil {
			return err
		}
		for i, row := range vr.Values {
			for j, v := range row {
				tab[cellKey{row: r.StartRow + i, col: r.StartCol + j}] = v
			}
		}
	}
	return nil
}

// ReadRange implements Sink. Trailing empty cells and rows are trimmed the way the
// Sheets API does.
func (m *MemorySink) ReadRange(_ context.Context, spreadsheetID, rng string) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}
	tab, err := m.book(spreadsheetID).tab(r.Sheet)
	if err != nil {
		return nil, err
	}

	maxRow, maxCol := 0, 0
	for k := range tab {
		if r.Contains(k.row, k.col) && !isEmpty(tab[k]) {
			maxRow = max(maxRow, k.row)
			maxCol = max(maxCol, k.col)
		}
	}

	var rows [][]any
	for row := r.StartRow; row <= maxRow; row++ {
		var values []any
		for col := r.StartCol; col <= maxCol; col++ {
			values = append(values, tab[cellKey{row: row, col: col}])
		}
		for len(values) > 0 && isEmpty(values[len(values)-1]) {
			values = values[:len(values)-1]
		}
		for i, v := range values {
			if v == nil {
				values[i] = ""
			}
		}
		rows = append(rows, values)
	}
	return rows, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// AddSheet implements Sink.
func (m *MemorySink) AddSheet(_ context.Context, spreadsheetID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.book(spreadsheetID)
	for _, name := range b.order {
		if strings.EqualFold(name, title) {
			return fmt.Errorf("a sheet with the name %q already exists", title)
		}
	}
	b.order = append(b.order, title)
	b.tabs[title] = make(map[cellKey]any)
	return nil
}

// SheetTitles implements Sink.
func (m *MemorySink) SheetTitles(_ context.Context, spreadsheetID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.book(spreadsheetID).order...), nil
}

// Value returns the value stored at an A1 cell such as "'Running Balance'!B2".
func (m *MemorySink) Value(spreadsheetID, ref string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := ParseRange(ref)
	if err != nil {
		return nil, false
	}
	tab, err := m.book(spreadsheetID).tab(r.Sheet)
	if err != nil {
		return nil, false
	}
	v, ok := tab[cellKey{row: r.StartRow, col: r.StartCol}]
	return v, ok
}

// Writes returns every BatchWrite call made so far.
func (m *MemorySink) Writes() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteCall(nil), m.writes...)
}
