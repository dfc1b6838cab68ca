package singlelevel

import (
	"math"

	"cogtrial/domain/trial"
)

// critical value for a 95% normal-approximation interval
const z95 = 1.96

// Contrasts derives both group contrasts from one outcome's fit. Because the
// estimated marginal means all share the intercept and the pre_z term, the
// contrasts reduce to weighted combinations of the two dummy coefficients,
// with standard errors taken from the coefficient covariance.
func Contrasts(fit *FitResult) []trial.ContrastEstimate {
	out := make([]trial.ContrastEstimate, 0, len(trial.Contrasts()))
	for _, contrast := range trial.Contrasts() {
		wA, wB := contrast.Weights()
		estimate := wA*fit.Coef[2] + wB*fit.Coef[3]

		variance := wA*wA*fit.Cov.At(2, 2) +
			wB*wB*fit.Cov.At(3, 3) +
			2*wA*wB*fit.Cov.At(2, 3)
		se := math.Sqrt(variance)

		out = append(out, trial.ContrastEstimate{
			Model:    trial.ModelSingleLevel,
			Outcome:  fit.Outcome,
			Contrast: contrast,
			Estimate: estimate,
			Lower:    estimate - z95*se,
			Upper:    estimate + z95*se,
		})
	}
	return out
}

// Run fits every outcome independently and concatenates the per-outcome
// contrast records. Each outcome's result comes from a pure per-outcome fit;
// accumulation happens only here in the caller.
func Run(rowsByOutcome map[trial.Outcome][]trial.ModelRow) ([]trial.ContrastEstimate, []*FitResult, error) {
	var estimates []trial.ContrastEstimate
	var fits []*FitResult
	for _, outcome := range trial.Outcomes() {
		fit, err := Fit(outcome, rowsByOutcome[outcome])
		if err != nil {
			return nil, nil, err
		}
		fits = append(fits, fit)
		estimates = append(estimates, Contrasts(fit)...)
	}
	return estimates, fits, nil
}
