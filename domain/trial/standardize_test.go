package trial

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func pairedFixture(n int, shift float64) map[Outcome][]PairedScore {
	byOutcome := make(map[Outcome][]PairedScore)
	for oi, outcome := range Outcomes() {
		for i := 0; i < n; i++ {
			pre := 100 + float64(oi)*10 + float64(i)*3
			byOutcome[outcome] = append(byOutcome[outcome], PairedScore{
				Participant: i + 1,
				Outcome:     outcome,
				Pre:         pre,
				Post:        pre + shift,
			})
		}
	}
	return byOutcome
}

func TestStandardize_PreHasZeroMeanUnitSD(t *testing.T) {
	standardized, params, err := Standardize(pairedFixture(12, -5))
	if err != nil {
		t.Fatalf("standardize: %v", err)
	}

	for _, outcome := range Outcomes() {
		rows := standardized[outcome]
		preZ := make([]float64, len(rows))
		for i, r := range rows {
			preZ[i] = r.PreZ
		}
		mean := stat.Mean(preZ, nil)
		sd := stat.StdDev(preZ, nil)
		if math.Abs(mean) > 1e-12 {
			t.Fatalf("outcome %s: standardized pre mean = %g, want 0", outcome, mean)
		}
		if math.Abs(sd-1) > 1e-12 {
			t.Fatalf("outcome %s: standardized pre SD = %g, want 1", outcome, sd)
		}
		if params[outcome].N != len(rows) {
			t.Fatalf("outcome %s: params N = %d, want %d", outcome, params[outcome].N, len(rows))
		}
	}
}

func TestStandardize_PostUsesPreParameters(t *testing.T) {
	// Every post equals pre + shift, so post_z must equal pre_z + sign*shift/SD
	// exactly: the post distribution is never re-centered on itself.
	const shift = -5.0
	standardized, params, err := Standardize(pairedFixture(10, shift))
	if err != nil {
		t.Fatalf("standardize: %v", err)
	}

	for _, outcome := range Outcomes() {
		sign := 1.0
		if !outcome.HigherIsBetter() {
			sign = -1.0
		}
		expectedDelta := sign * shift / params[outcome].SD
		for _, r := range standardized[outcome] {
			if math.Abs((r.PostZ-r.PreZ)-expectedDelta) > 1e-12 {
				t.Fatalf("outcome %s: post_z - pre_z = %g, want %g",
					outcome, r.PostZ-r.PreZ, expectedDelta)
			}
		}
	}
}

func TestStandardize_ReversedOutcomesFlipSign(t *testing.T) {
	standardized, params, err := Standardize(pairedFixture(10, 0))
	if err != nil {
		t.Fatalf("standardize: %v", err)
	}

	for _, outcome := range Outcomes() {
		p := params[outcome]
		if p.Reversed == outcome.HigherIsBetter() {
			t.Fatalf("outcome %s: Reversed=%v inconsistent with HigherIsBetter=%v",
				outcome, p.Reversed, outcome.HigherIsBetter())
		}
		for _, r := range standardized[outcome] {
			rawDev := r.Pre - p.Mean
			if rawDev == 0 {
				continue
			}
			sameSign := (rawDev > 0) == (r.PreZ > 0)
			if outcome.HigherIsBetter() && !sameSign {
				t.Fatalf("outcome %s: higher-is-better z should track the raw deviation", outcome)
			}
			if !outcome.HigherIsBetter() && sameSign {
				t.Fatalf("outcome %s: reversed z should strictly oppose the raw deviation", outcome)
			}
		}
	}
}

func TestStandardize_ZeroVarianceIsFatal(t *testing.T) {
	byOutcome := make(map[Outcome][]PairedScore)
	for _, outcome := range Outcomes() {
		for i := 0; i < 5; i++ {
			byOutcome[outcome] = append(byOutcome[outcome], PairedScore{
				Participant: i + 1, Outcome: outcome, Pre: 42, Post: 40,
			})
		}
	}
	if _, _, err := Standardize(byOutcome); err == nil {
		t.Fatal("expected error for zero pre variance")
	}
}
