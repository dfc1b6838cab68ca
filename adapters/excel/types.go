package excel

// RawRowData represents one sheet row as string key-value pairs keyed by header
type RawRowData map[string]string

// SheetData represents the complete wide-format trial sheet
type SheetData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// SheetConfig holds configuration for the trial spreadsheet source
type SheetConfig struct {
	FilePath string `json:"file_path"`
	Sheet    string `json:"sheet"`
}

// DefaultSheetConfig returns sensible defaults for the trial workbook layout
func DefaultSheetConfig() SheetConfig {
	return SheetConfig{Sheet: "Sheet1"}
}
