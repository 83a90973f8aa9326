package model

// ExportDestination selects where aggregated budgets go.
type ExportDestination string

// Export destinations.
const (
	ExportNative       ExportDestination = "native"
	ExportGoogleSheets ExportDestination = "google_sheets"
)

// Valid reports whether d is a known destination.
func (d ExportDestination) Valid() bool {
	return d == ExportNative || d == ExportGoogleSheets
}
