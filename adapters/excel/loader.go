package excel

import (
	"fmt"
	"log"
	"math"
	"strconv"

	"cogtrial/domain/trial"
)

// Fixed demographic column names in the trial workbook.
const (
	ColumnID        = "id"
	ColumnAge       = "age"
	ColumnScreening = "moca"
	ColumnGroup     = "group"
)

// PreColumn returns the pre-timepoint column name for an outcome.
func PreColumn(o trial.Outcome) string { return "pre_" + string(o) }

// PostColumn returns the post-timepoint column name for an outcome.
func PostColumn(o trial.Outcome) string { return "post_" + string(o) }

// LoadWideRecords maps raw sheet rows onto domain wide records: demographics
// plus the 14 pre/post score cells. A synthetic sequential participant ID is
// assigned in sheet row order. Blank or non-numeric score cells become NaN and
// are excluded per outcome downstream; an unknown group label is fatal because
// the contrast coding depends on exactly three levels.
func LoadWideRecords(data *SheetData) ([]trial.WideRecord, error) {
	if err := checkColumns(data); err != nil {
		return nil, err
	}

	records := make([]trial.WideRecord, 0, len(data.Rows))
	for i, row := range data.Rows {
		group, err := trial.ParseGroup(row[ColumnGroup])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		rec := trial.WideRecord{
			Participant: trial.Participant{
				ID:        i + 1,
				SourceID:  row[ColumnID],
				Age:       parseCell(row[ColumnAge]),
				Screening: parseCell(row[ColumnScreening]),
				Group:     group,
			},
			Pre:  make(map[trial.Outcome]float64, len(trial.Outcomes())),
			Post: make(map[trial.Outcome]float64, len(trial.Outcomes())),
		}
		for _, outcome := range trial.Outcomes() {
			rec.Pre[outcome] = parseCell(row[PreColumn(outcome)])
			rec.Post[outcome] = parseCell(row[PostColumn(outcome)])
		}
		records = append(records, rec)
	}

	log.Printf("[Loader] Mapped %d participants across %d outcomes", len(records), len(trial.Outcomes()))
	return records, nil
}

func checkColumns(data *SheetData) error {
	present := make(map[string]bool, len(data.Headers))
	for _, h := range data.Headers {
		present[h] = true
	}

	required := []string{ColumnID, ColumnAge, ColumnScreening, ColumnGroup}
	for _, outcome := range trial.Outcomes() {
		required = append(required, PreColumn(outcome), PostColumn(outcome))
	}
	for _, col := range required {
		if !present[col] {
			return fmt.Errorf("required column %q not found in sheet", col)
		}
	}
	return nil
}

// parseCell converts a raw cell to a float; blank or non-numeric cells become
// NaN so that pairing can drop them per outcome.
func parseCell(raw string) float64 {
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
