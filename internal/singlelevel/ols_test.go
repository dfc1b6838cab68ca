package singlelevel

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"cogtrial/domain/trial"
)

// makeRows builds 20 participants with known group effects for one outcome.
func makeRows(seed int64) []trial.ModelRow {
	rng := rand.New(rand.NewSource(seed))
	groups := trial.Groups()
	rows := make([]trial.ModelRow, 0, 20)
	for i := 0; i < 20; i++ {
		group := groups[i%3]
		preZ := rng.NormFloat64()
		postZ := 0.5*preZ + rng.NormFloat64()*0.4
		switch group {
		case trial.GroupStabilityA:
			postZ += 0.3
		case trial.GroupStabilityB:
			postZ += 0.6
		}
		rows = append(rows, trial.ModelRow{
			Participant: i + 1,
			Outcome:     trial.OutcomeFlanker,
			Group:       group,
			PreZ:        preZ,
			PostZ:       postZ,
		})
	}
	return rows
}

// TestFit_MatchesNormalEquations checks the QR-based fit against an
// independent normal-equations solve of the same standardized inputs.
func TestFit_MatchesNormalEquations(t *testing.T) {
	rows := makeRows(7)
	fit, err := Fit(trial.OutcomeFlanker, rows)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	n := len(rows)
	p := trial.NumCoef
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range rows {
		x.SetRow(i, row.Design())
		y.SetVec(i, row.PostZ)
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xty mat.VecDense
	xty.MulVec(x.T(), y)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		t.Fatalf("invert X'X: %v", err)
	}
	var want mat.VecDense
	want.MulVec(&xtxInv, &xty)

	for k := 0; k < p; k++ {
		if math.Abs(fit.Coef[k]-want.AtVec(k)) > 1e-9 {
			t.Fatalf("coefficient %d: QR fit %.12f vs normal equations %.12f",
				k, fit.Coef[k], want.AtVec(k))
		}
	}
}

func TestFit_RecoversGroupEffects(t *testing.T) {
	// Noiseless data: coefficients must be exact up to float tolerance.
	groups := trial.Groups()
	rows := make([]trial.ModelRow, 0, 30)
	for i := 0; i < 30; i++ {
		group := groups[i%3]
		preZ := float64(i%7) - 3
		postZ := 0.1 + 0.5*preZ
		switch group {
		case trial.GroupStabilityA:
			postZ += 0.3
		case trial.GroupStabilityB:
			postZ += 0.6
		}
		rows = append(rows, trial.ModelRow{Participant: i + 1, Outcome: trial.OutcomeStroop, Group: group, PreZ: preZ, PostZ: postZ})
	}

	fit, err := Fit(trial.OutcomeStroop, rows)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	want := []float64{0.1, 0.5, 0.3, 0.6}
	for k, w := range want {
		if math.Abs(fit.Coef[k]-w) > 1e-9 {
			t.Fatalf("coefficient %d: got %.9f, want %.9f", k, fit.Coef[k], w)
		}
	}
}

func TestContrasts_RespectCoding(t *testing.T) {
	// With known coefficients the contrasts must equal the specified linear
	// combinations: c1 = 0.5*betaA + 0.5*betaB, c2 = betaB - betaA, which are
	// the EMM combinations -ref + 0.5A + 0.5B and -A + B.
	fit := &FitResult{
		Outcome: trial.OutcomeCorsi,
		N:       30,
		Coef:    []float64{0.1, 0.5, 0.3, 0.6},
		Cov:     mat.NewSymDense(4, nil),
	}

	estimates := Contrasts(fit)
	if len(estimates) != 2 {
		t.Fatalf("expected 2 contrasts, got %d", len(estimates))
	}

	byName := map[trial.Contrast]trial.ContrastEstimate{}
	for _, e := range estimates {
		byName[e.Contrast] = e
	}

	c1 := byName[trial.ContrastInstabilityVsStability]
	if math.Abs(c1.Estimate-0.45) > 1e-12 {
		t.Fatalf("instability-vs-stability estimate = %g, want 0.45", c1.Estimate)
	}
	c2 := byName[trial.ContrastStableVariantAVsB]
	if math.Abs(c2.Estimate-0.3) > 1e-12 {
		t.Fatalf("stable-variant-A-vs-B estimate = %g, want 0.3", c2.Estimate)
	}

	// EMM identity: the contrast over EMMs equals the coefficient combination.
	emmC1 := -fit.EMM(trial.GroupInstability) + 0.5*fit.EMM(trial.GroupStabilityA) + 0.5*fit.EMM(trial.GroupStabilityB)
	if math.Abs(emmC1-c1.Estimate) > 1e-12 {
		t.Fatalf("EMM combination %g disagrees with contrast %g", emmC1, c1.Estimate)
	}
}

func TestContrasts_IntervalUsesCoefficientCovariance(t *testing.T) {
	cov := mat.NewSymDense(4, nil)
	cov.SetSym(2, 2, 0.04)
	cov.SetSym(3, 3, 0.09)
	cov.SetSym(2, 3, 0.01)
	fit := &FitResult{
		Outcome: trial.OutcomeDigitSpan,
		Coef:    []float64{0, 0, 0.2, 0.4},
		Cov:     cov,
	}

	estimates := Contrasts(fit)
	for _, e := range estimates {
		wA, wB := e.Contrast.Weights()
		wantSE := math.Sqrt(wA*wA*0.04 + wB*wB*0.09 + 2*wA*wB*0.01)
		gotHalfWidth := (e.Upper - e.Lower) / 2
		if math.Abs(gotHalfWidth-1.96*wantSE) > 1e-12 {
			t.Fatalf("contrast %s: half width %g, want %g", e.Contrast, gotHalfWidth, 1.96*wantSE)
		}
		if math.Abs((e.Upper+e.Lower)/2-e.Estimate) > 1e-12 {
			t.Fatalf("contrast %s: interval not symmetric around the estimate", e.Contrast)
		}
	}
}

func TestFit_TooFewRows(t *testing.T) {
	rows := makeRows(1)[:4]
	if _, err := Fit(trial.OutcomeFlanker, rows); err == nil {
		t.Fatal("expected error for underdetermined fit")
	}
}
