// Package synth generates seeded synthetic trial datasets with known ground
// truth, used by the gold-standard tests and for pipeline dry runs.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/xuri/excelize/v2"

	"cogtrial/adapters/excel"
	"cogtrial/domain/trial"
)

// Config controls the synthetic truth set.
type Config struct {
	Participants int
	Seed         int64

	// True effects in standardized "goodness" units (higher = better).
	StabilityEffect float64 // average benefit of either stability variant over instability
	VariantBGap     float64 // extra benefit of stabilityB over stabilityA
	EffectSpread    float64 // SD of per-outcome deviations around the average effects
	Persistence     float64 // pre-to-post carryover of individual standing
	NoiseSD         float64 // residual SD of the post score
	ParticipantSD   float64 // SD of the per-participant ability shift
	MissingRate     float64 // probability a score cell is blank
}

// DefaultConfig returns a moderately noisy truth set.
func DefaultConfig() Config {
	return Config{
		Participants:    60,
		Seed:            42,
		StabilityEffect: 0.4,
		VariantBGap:     0.2,
		EffectSpread:    0.15,
		Persistence:     0.6,
		NoiseSD:         0.5,
		ParticipantSD:   0.3,
		MissingRate:     0,
	}
}

// rawScale maps the standardized goodness score back onto plausible raw units
// per outcome, so the generated sheet looks like real task output.
type rawScale struct {
	mean float64
	sd   float64
}

func scaleFor(o trial.Outcome) rawScale {
	switch o {
	case trial.OutcomeFlanker:
		return rawScale{mean: 480, sd: 60} // ms
	case trial.OutcomeStroop:
		return rawScale{mean: 720, sd: 95} // ms
	case trial.OutcomeSimon:
		return rawScale{mean: 520, sd: 70} // ms
	case trial.OutcomeTrailMaking:
		return rawScale{mean: 95, sd: 22} // s
	case trial.OutcomeTaskSwitching:
		return rawScale{mean: 310, sd: 55} // ms switch cost
	case trial.OutcomeDigitSpan:
		return rawScale{mean: 6.2, sd: 1.1} // items
	case trial.OutcomeCorsi:
		return rawScale{mean: 5.4, sd: 1.0} // items
	}
	return rawScale{mean: 0, sd: 1}
}

// Dataset is the in-memory synthetic truth set.
type Dataset struct {
	Records []trial.WideRecord

	// TrueContrast holds the generating per-outcome effects in standardized
	// goodness units, keyed by contrast then outcome.
	TrueContrast map[trial.Contrast]map[trial.Outcome]float64
}

// Generate builds the truth set from a seeded RNG.
func Generate(cfg Config) (*Dataset, error) {
	if cfg.Participants < 6 {
		return nil, fmt.Errorf("participants must be >= 6 to cover three groups, got %d", cfg.Participants)
	}
	if cfg.MissingRate < 0 || cfg.MissingRate >= 1 {
		return nil, fmt.Errorf("missing rate must be in [0,1), got %g", cfg.MissingRate)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	groups := trial.Groups()

	// Per-outcome deviations around the average group effects. These are the
	// spread the hierarchical model should shrink.
	devA := make(map[trial.Outcome]float64)
	devB := make(map[trial.Outcome]float64)
	for _, outcome := range trial.Outcomes() {
		devA[outcome] = rng.NormFloat64() * cfg.EffectSpread
		devB[outcome] = rng.NormFloat64() * cfg.EffectSpread
	}

	ds := &Dataset{
		TrueContrast: map[trial.Contrast]map[trial.Outcome]float64{
			trial.ContrastInstabilityVsStability: make(map[trial.Outcome]float64),
			trial.ContrastStableVariantAVsB:      make(map[trial.Outcome]float64),
		},
	}
	for _, outcome := range trial.Outcomes() {
		effA := cfg.StabilityEffect + devA[outcome]
		effB := cfg.StabilityEffect + cfg.VariantBGap + devB[outcome]
		ds.TrueContrast[trial.ContrastInstabilityVsStability][outcome] = 0.5*effA + 0.5*effB
		ds.TrueContrast[trial.ContrastStableVariantAVsB][outcome] = effB - effA
	}

	for i := 0; i < cfg.Participants; i++ {
		group := groups[i%len(groups)]
		ability := rng.NormFloat64() * cfg.ParticipantSD

		rec := trial.WideRecord{
			Participant: trial.Participant{
				ID:        i + 1,
				SourceID:  fmt.Sprintf("P%03d", i+1),
				Age:       70 + rng.NormFloat64()*5,
				Screening: math.Round(27 + rng.NormFloat64()*1.5),
				Group:     group,
			},
			Pre:  make(map[trial.Outcome]float64),
			Post: make(map[trial.Outcome]float64),
		}

		for _, outcome := range trial.Outcomes() {
			goodPre := rng.NormFloat64()
			delta := 0.0
			switch group {
			case trial.GroupStabilityA:
				delta = cfg.StabilityEffect + devA[outcome]
			case trial.GroupStabilityB:
				delta = cfg.StabilityEffect + cfg.VariantBGap + devB[outcome]
			}
			goodPost := cfg.Persistence*goodPre + ability + delta + rng.NormFloat64()*cfg.NoiseSD

			rec.Pre[outcome] = toRaw(outcome, goodPre)
			rec.Post[outcome] = toRaw(outcome, goodPost)

			if cfg.MissingRate > 0 {
				if rng.Float64() < cfg.MissingRate {
					delete(rec.Pre, outcome)
				}
				if rng.Float64() < cfg.MissingRate {
					delete(rec.Post, outcome)
				}
			}
		}
		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

// toRaw converts a standardized goodness score into raw task units; for
// reversed outcomes better performance means a smaller raw value.
func toRaw(o trial.Outcome, goodness float64) float64 {
	s := scaleFor(o)
	if o.HigherIsBetter() {
		return s.mean + s.sd*goodness
	}
	return s.mean - s.sd*goodness
}

// Headers returns the sheet column order used by the writers.
func Headers() []string {
	headers := []string{excel.ColumnID, excel.ColumnAge, excel.ColumnScreening, excel.ColumnGroup}
	for _, outcome := range trial.Outcomes() {
		headers = append(headers, excel.PreColumn(outcome), excel.PostColumn(outcome))
	}
	return headers
}

// ToSheetData renders the dataset in the reader's in-memory format, letting
// tests exercise the loader without touching the filesystem.
func (d *Dataset) ToSheetData() *excel.SheetData {
	data := &excel.SheetData{Headers: Headers()}
	for _, rec := range d.Records {
		row := excel.RawRowData{
			excel.ColumnID:        rec.Participant.SourceID,
			excel.ColumnAge:       formatScore(rec.Participant.Age, true),
			excel.ColumnScreening: formatScore(rec.Participant.Screening, true),
			excel.ColumnGroup:     string(rec.Participant.Group),
		}
		for _, outcome := range trial.Outcomes() {
			row[excel.PreColumn(outcome)] = cellFor(rec.Pre, outcome)
			row[excel.PostColumn(outcome)] = cellFor(rec.Post, outcome)
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// WriteXLSX saves the dataset as a workbook the report pipeline can ingest.
func (d *Dataset) WriteXLSX(path, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = excel.DefaultSheetConfig().Sheet
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	data := d.ToSheetData()
	for c, header := range data.Headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	for r, row := range data.Rows {
		for c, header := range data.Headers {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, row[header]); err != nil {
				return err
			}
		}
	}

	return f.SaveAs(path)
}

func cellFor(scores map[trial.Outcome]float64, o trial.Outcome) string {
	v, ok := scores[o]
	if !ok {
		return ""
	}
	return formatScore(v, false)
}

func formatScore(v float64, whole bool) string {
	if whole {
		return strconv.FormatFloat(math.Round(v), 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
