package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cogtrial/domain/trial"
)

// Merge concatenates the single-level and hierarchical contrast tables into
// one model-tagged table, ordered by contrast, outcome, then model so the two
// estimates for each cell sit side by side.
func Merge(single, hier []trial.ContrastEstimate) []trial.ContrastEstimate {
	merged := make([]trial.ContrastEstimate, 0, len(single)+len(hier))
	merged = append(merged, single...)
	merged = append(merged, hier...)

	order := make(map[trial.Outcome]int, len(trial.Outcomes()))
	for i, o := range trial.Outcomes() {
		order[o] = i
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Contrast != b.Contrast {
			return a.Contrast < b.Contrast
		}
		if a.Outcome != b.Outcome {
			return order[a.Outcome] < order[b.Outcome]
		}
		return a.Model < b.Model
	})
	return merged
}

// FilterModel returns only the rows produced by one model.
func FilterModel(rows []trial.ContrastEstimate, model trial.ModelType) []trial.ContrastEstimate {
	var out []trial.ContrastEstimate
	for _, r := range rows {
		if r.Model == model {
			out = append(out, r)
		}
	}
	return out
}

// FilterContrast returns only the rows for one contrast.
func FilterContrast(rows []trial.ContrastEstimate, contrast trial.Contrast) []trial.ContrastEstimate {
	var out []trial.ContrastEstimate
	for _, r := range rows {
		if r.Contrast == contrast {
			out = append(out, r)
		}
	}
	return out
}

// WriteCSV writes a contrast table with one row per
// (contrast, outcome, model) estimate.
func WriteCSV(path string, rows []trial.ContrastEstimate) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"contrast", "outcome", "model", "estimate", "lower", "upper"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			string(r.Contrast),
			string(r.Outcome),
			string(r.Model),
			formatEstimate(r.Estimate),
			formatEstimate(r.Lower),
			formatEstimate(r.Upper),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatEstimate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
