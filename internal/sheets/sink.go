package sheets

import "context"

// ValueInput controls how written values are interpreted.
type ValueInput string

// Value input options.
const (
	InputRaw         ValueInput = "RAW"
	InputUserEntered ValueInput = "USER_ENTERED"
)

// ValueRange is a block of values anchored at an A1 range.
type ValueRange struct {
	Range  string
	Values [][]any
}

// Sink is the spreadsheet backend.
type Sink interface {
	BatchWrite(ctx context.Context, spreadsheetID string, input ValueInput, data []ValueRange) error
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	AddSheet(ctx context.Context, spreadsheetID, title string) error
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
}
