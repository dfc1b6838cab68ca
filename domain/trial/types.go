package trial

import "fmt"

// Timepoint identifies when a score was measured relative to the intervention.
type Timepoint string

const (
	TimepointPre  Timepoint = "pre"
	TimepointPost Timepoint = "post"
)

// Group is one of the three training conditions. Instability training is the
// reference level for all contrast coding.
type Group string

const (
	GroupInstability Group = "instability"
	GroupStabilityA  Group = "stabilityA"
	GroupStabilityB  Group = "stabilityB"
)

// Groups returns the three factor levels in coding order (reference first).
func Groups() []Group {
	return []Group{GroupInstability, GroupStabilityA, GroupStabilityB}
}

// ParseGroup validates a raw group label from the input sheet.
func ParseGroup(raw string) (Group, error) {
	switch Group(raw) {
	case GroupInstability, GroupStabilityA, GroupStabilityB:
		return Group(raw), nil
	}
	return "", fmt.Errorf("unknown group label %q (expected one of %v)", raw, Groups())
}

// Outcome is one of the seven executive-function measures collected at both
// timepoints. Column names in the input sheet follow pre_<Outcome>/post_<Outcome>.
type Outcome string

const (
	OutcomeFlanker       Outcome = "Flanker"
	OutcomeStroop        Outcome = "Stroop"
	OutcomeSimon         Outcome = "Simon"
	OutcomeTrailMaking   Outcome = "TrailMaking"
	OutcomeTaskSwitching Outcome = "TaskSwitching"
	OutcomeDigitSpan     Outcome = "DigitSpan"
	OutcomeCorsi         Outcome = "Corsi"
)

// Outcomes returns all seven measures in canonical report order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeFlanker,
		OutcomeStroop,
		OutcomeSimon,
		OutcomeTrailMaking,
		OutcomeTaskSwitching,
		OutcomeDigitSpan,
		OutcomeCorsi,
	}
}

// HigherIsBetter reports whether larger raw scores indicate better performance.
// The two span tasks count correctly recalled items; the remaining five are
// reaction-time or completion-time measures where larger means worse, and their
// standardized values are sign-flipped so that higher always means better.
func (o Outcome) HigherIsBetter() bool {
	return o == OutcomeDigitSpan || o == OutcomeCorsi
}

// Valid reports whether o is one of the seven registered outcomes.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes() {
		if o == known {
			return true
		}
	}
	return false
}

// Participant holds the demographic attributes carried through the analysis.
// ID is a synthetic sequential identifier assigned in sheet row order;
// SourceID preserves the identifier column from the input file.
type Participant struct {
	ID        int     `json:"id"`
	SourceID  string  `json:"source_id"`
	Age       float64 `json:"age"`
	Screening float64 `json:"screening"`
	Group     Group   `json:"group"`
}

// Observation is one score in long form: (participant, outcome, timepoint).
// Score is NaN when the cell was blank or non-numeric.
type Observation struct {
	Participant int       `json:"participant"`
	Outcome     Outcome   `json:"outcome"`
	Timepoint   Timepoint `json:"timepoint"`
	Score       float64   `json:"score"`
}

// PairedScore is one row per (participant, outcome) with both timepoints
// present. Rows missing either side never become PairedScores.
type PairedScore struct {
	Participant int     `json:"participant"`
	Outcome     Outcome `json:"outcome"`
	Pre         float64 `json:"pre"`
	Post        float64 `json:"post"`
}

// StandardizedScore carries the z-scored pre/post values alongside the raw
// pair. Both z-values use the outcome's pre-timepoint mean and SD, and are
// negated for reversed (higher-is-worse) outcomes.
type StandardizedScore struct {
	PairedScore
	PreZ  float64 `json:"pre_z"`
	PostZ float64 `json:"post_z"`
}

// ScaleParams records the standardization applied to one outcome.
type ScaleParams struct {
	Mean     float64 `json:"mean"`
	SD       float64 `json:"sd"`
	Reversed bool    `json:"reversed"`
	N        int     `json:"n"`
}

// ModelType tags a contrast estimate with the analysis that produced it.
type ModelType string

const (
	ModelSingleLevel  ModelType = "single-level"
	ModelHierarchical ModelType = "hierarchical"
)

// Contrast names one of the two linear comparisons of the group means.
type Contrast string

const (
	// ContrastInstabilityVsStability is the average of the two stability
	// variants minus the instability (reference) condition:
	// -1*instability + 0.5*stabilityA + 0.5*stabilityB.
	ContrastInstabilityVsStability Contrast = "instability-vs-stability"

	// ContrastStableVariantAVsB compares the two stability variants:
	// -1*stabilityA + 1*stabilityB.
	ContrastStableVariantAVsB Contrast = "stable-variant-A-vs-B"
)

// Contrasts returns both comparisons in report order.
func Contrasts() []Contrast {
	return []Contrast{ContrastInstabilityVsStability, ContrastStableVariantAVsB}
}

// Weights returns the contrast weights over the two non-reference dummy
// coefficients (stabilityA, stabilityB). The reference level contributes
// through the estimated marginal means but cancels out of the coefficient
// combination: -EMM(ref) + 0.5*EMM(A) + 0.5*EMM(B) = 0.5*betaA + 0.5*betaB,
// and -EMM(A) + EMM(B) = betaB - betaA.
func (c Contrast) Weights() (wA, wB float64) {
	switch c {
	case ContrastInstabilityVsStability:
		return 0.5, 0.5
	case ContrastStableVariantAVsB:
		return -1, 1
	}
	return 0, 0
}

// ContrastEstimate is one row of the output tables: a point estimate with its
// 95% interval. For the single-level model the interval is a normal
// approximation (estimate +/- 1.96*SE); for the hierarchical model it is the
// empirical 2.5/97.5 percentile of the posterior draws.
type ContrastEstimate struct {
	Model    ModelType `json:"model"`
	Outcome  Outcome   `json:"outcome"`
	Contrast Contrast  `json:"contrast"`
	Estimate float64   `json:"estimate"`
	Lower    float64   `json:"lower"`
	Upper    float64   `json:"upper"`
}
