package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading the wide trial sheet from Excel and CSV files
type DataReader struct {
	filePath string
	sheet    string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(cfg SheetConfig) *DataReader {
	ext := strings.ToLower(filepath.Ext(cfg.FilePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	sheet := cfg.Sheet
	if sheet == "" {
		sheet = DefaultSheetConfig().Sheet
	}
	return &DataReader{filePath: cfg.FilePath, sheet: sheet, fileType: fileType}
}

// ReadData reads the sheet into structured format
func (r *DataReader) ReadData() (*SheetData, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads the configured sheet into structured format
func (r *DataReader) readExcelData() (*SheetData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()
	fileOpenTime := time.Since(startTime)
	log.Printf("[DataReader] Excel file opened in %.2fms", float64(fileOpenTime.Nanoseconds())/1e6)

	readStart := time.Now()
	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", r.sheet, err)
	}
	readTime := time.Since(readStart)
	log.Printf("[DataReader] Sheet %q read in %.2fms (%d rows)", r.sheet, float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q must have at least a header row and one data row", r.sheet)
	}

	return r.processRows(rows)
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	readTime := time.Since(readStart)
	log.Printf("[DataReader] CSV file read in %.2fms (%d rows)", float64(readTime.Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	return r.processRows(rows)
}

// processRows converts raw string rows into SheetData format
func (r *DataReader) processRows(rows [][]string) (*SheetData, error) {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)

		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}

		dataRows = append(dataRows, rowData)
	}

	log.Printf("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &SheetData{
		Headers: headers,
		Rows:    dataRows,
	}, nil
}
