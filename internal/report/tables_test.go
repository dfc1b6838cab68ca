package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"cogtrial/domain/trial"
)

func estimateFixture() ([]trial.ContrastEstimate, []trial.ContrastEstimate) {
	var single, hier []trial.ContrastEstimate
	for oi, outcome := range trial.Outcomes() {
		for _, contrast := range trial.Contrasts() {
			base := 0.1 * float64(oi+1)
			single = append(single, trial.ContrastEstimate{
				Model: trial.ModelSingleLevel, Outcome: outcome, Contrast: contrast,
				Estimate: base, Lower: base - 0.2, Upper: base + 0.2,
			})
			hier = append(hier, trial.ContrastEstimate{
				Model: trial.ModelHierarchical, Outcome: outcome, Contrast: contrast,
				Estimate: base * 0.8, Lower: base*0.8 - 0.15, Upper: base*0.8 + 0.15,
			})
		}
	}
	return single, hier
}

func TestMerge_OrdersByContrastOutcomeModel(t *testing.T) {
	single, hier := estimateFixture()
	merged := Merge(single, hier)

	if len(merged) != len(single)+len(hier) {
		t.Fatalf("merged %d rows, want %d", len(merged), len(single)+len(hier))
	}

	order := map[trial.Outcome]int{}
	for i, o := range trial.Outcomes() {
		order[o] = i
	}
	for i := 1; i < len(merged); i++ {
		a, b := merged[i-1], merged[i]
		switch {
		case a.Contrast < b.Contrast:
		case a.Contrast > b.Contrast:
			t.Fatalf("row %d: contrast %s after %s", i, b.Contrast, a.Contrast)
		case order[a.Outcome] < order[b.Outcome]:
		case order[a.Outcome] > order[b.Outcome]:
			t.Fatalf("row %d: outcome %s after %s within contrast %s", i, b.Outcome, a.Outcome, a.Contrast)
		case a.Model >= b.Model:
			t.Fatalf("row %d: models out of order within cell (%s, %s)", i, a.Contrast, a.Outcome)
		}
	}

	// Within each (contrast, outcome) cell both models must be adjacent.
	for i := 0; i < len(merged); i += 2 {
		a, b := merged[i], merged[i+1]
		if a.Contrast != b.Contrast || a.Outcome != b.Outcome {
			t.Fatalf("rows %d,%d: cell split across (%s,%s) and (%s,%s)",
				i, i+1, a.Contrast, a.Outcome, b.Contrast, b.Outcome)
		}
		if a.Model != trial.ModelHierarchical || b.Model != trial.ModelSingleLevel {
			t.Fatalf("rows %d,%d: unexpected model pairing %s/%s", i, i+1, a.Model, b.Model)
		}
	}
}

func TestFilterModelAndContrast(t *testing.T) {
	single, hier := estimateFixture()
	merged := Merge(single, hier)

	got := FilterModel(merged, trial.ModelSingleLevel)
	if len(got) != len(single) {
		t.Fatalf("FilterModel returned %d rows, want %d", len(got), len(single))
	}
	for _, r := range got {
		if r.Model != trial.ModelSingleLevel {
			t.Fatalf("FilterModel leaked model %s", r.Model)
		}
	}

	got = FilterContrast(merged, trial.ContrastStableVariantAVsB)
	if len(got) != 2*len(trial.Outcomes()) {
		t.Fatalf("FilterContrast returned %d rows, want %d", len(got), 2*len(trial.Outcomes()))
	}
	for _, r := range got {
		if r.Contrast != trial.ContrastStableVariantAVsB {
			t.Fatalf("FilterContrast leaked contrast %s", r.Contrast)
		}
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	single, hier := estimateFixture()
	merged := Merge(single, hier)

	path := filepath.Join(t.TempDir(), "estimates.csv")
	if err := WriteCSV(path, merged); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	wantHeader := []string{"contrast", "outcome", "model", "estimate", "lower", "upper"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header column %d = %q, want %q", i, records[0][i], col)
		}
	}
	if len(records)-1 != len(merged) {
		t.Fatalf("csv has %d data rows, want %d", len(records)-1, len(merged))
	}
	if records[1][0] != string(merged[0].Contrast) || records[1][1] != string(merged[0].Outcome) {
		t.Fatalf("first data row %v does not match merged[0] %+v", records[1], merged[0])
	}
}
