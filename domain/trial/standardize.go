package trial

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Standardize z-scores every outcome independently on its pre-timepoint
// distribution. The pre mean and sample SD are computed after missing-row
// exclusion and then applied to both timepoints: post scores are deliberately
// NOT re-centered on their own distribution, so a post z of 0 means "at the
// pre-intervention average". Reversed outcomes have both z-values negated so
// that a larger standardized score always means better performance.
func Standardize(byOutcome map[Outcome][]PairedScore) (map[Outcome][]StandardizedScore, map[Outcome]ScaleParams, error) {
	standardized := make(map[Outcome][]StandardizedScore, len(byOutcome))
	params := make(map[Outcome]ScaleParams, len(byOutcome))

	for _, outcome := range Outcomes() {
		rows := byOutcome[outcome]
		if len(rows) < 2 {
			return nil, nil, fmt.Errorf("outcome %s: need at least 2 paired rows to standardize, have %d", outcome, len(rows))
		}

		preScores := make([]float64, len(rows))
		for i, row := range rows {
			preScores[i] = row.Pre
		}
		mean, err := stats.Mean(preScores)
		if err != nil {
			return nil, nil, fmt.Errorf("outcome %s: pre mean: %w", outcome, err)
		}
		sd, err := stats.StandardDeviationSample(preScores)
		if err != nil {
			return nil, nil, fmt.Errorf("outcome %s: pre SD: %w", outcome, err)
		}
		if sd == 0 {
			return nil, nil, fmt.Errorf("outcome %s: pre scores have zero variance, cannot standardize", outcome)
		}

		sign := 1.0
		if !outcome.HigherIsBetter() {
			sign = -1.0
		}

		zRows := make([]StandardizedScore, len(rows))
		for i, row := range rows {
			zRows[i] = StandardizedScore{
				PairedScore: row,
				PreZ:        sign * (row.Pre - mean) / sd,
				PostZ:       sign * (row.Post - mean) / sd,
			}
		}
		standardized[outcome] = zRows
		params[outcome] = ScaleParams{
			Mean:     mean,
			SD:       sd,
			Reversed: !outcome.HigherIsBetter(),
			N:        len(rows),
		}
	}

	return standardized, params, nil
}
