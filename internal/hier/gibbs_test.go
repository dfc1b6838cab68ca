package hier

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"cogtrial/domain/trial"
	"cogtrial/internal/singlelevel"
	"cogtrial/internal/synth"
)

// testRows prepares model rows from a seeded synthetic dataset, using the
// same reshape/standardize path the production pipeline runs.
func testRows(t *testing.T, cfg synth.Config) map[trial.Outcome][]trial.ModelRow {
	t.Helper()
	ds, err := synth.Generate(cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	paired, _ := trial.PairByOutcome(trial.Long(ds.Records))
	standardized, _, err := trial.Standardize(paired)
	if err != nil {
		t.Fatalf("standardize: %v", err)
	}
	participants := make([]trial.Participant, len(ds.Records))
	for i, rec := range ds.Records {
		participants[i] = rec.Participant
	}
	rows, err := trial.JoinGroups(standardized, participants)
	if err != nil {
		t.Fatalf("join groups: %v", err)
	}
	return rows
}

func testConfig(seed int64) Config {
	return Config{
		Seed:       seed,
		Chains:     2,
		Iterations: 600,
		Warmup:     300,
		Priors:     DefaultPriors(),
	}
}

// TestSample_ShrinksTowardPopulationAverage is the gold-standard partial
// pooling check: with per-outcome true effects deliberately spread apart, the
// across-outcome variance of the hierarchical point estimates must be
// strictly smaller than the variance of the independent OLS estimates.
func TestSample_ShrinksTowardPopulationAverage(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Participants = 45
	cfg.Seed = 42
	cfg.EffectSpread = 0.8
	cfg.NoiseSD = 0.7

	rows := testRows(t, cfg)

	single, _, err := singlelevel.Run(rows)
	if err != nil {
		t.Fatalf("single-level run: %v", err)
	}

	model, err := NewModel(rows, testConfig(42))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	posterior, err := model.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	hierEstimates := posterior.Contrasts()

	for _, contrast := range trial.Contrasts() {
		singleVals := estimatesFor(single, contrast)
		hierVals := estimatesFor(hierEstimates, contrast)
		if len(singleVals) != len(trial.Outcomes()) || len(hierVals) != len(trial.Outcomes()) {
			t.Fatalf("contrast %s: expected %d estimates per model", contrast, len(trial.Outcomes()))
		}

		vSingle := stat.Variance(singleVals, nil)
		vHier := stat.Variance(hierVals, nil)
		if !(vHier < vSingle) {
			t.Fatalf("contrast %s: hierarchical variance %.5f not smaller than single-level %.5f",
				contrast, vHier, vSingle)
		}
	}
}

func estimatesFor(rows []trial.ContrastEstimate, contrast trial.Contrast) []float64 {
	var vals []float64
	for _, r := range rows {
		if r.Contrast == contrast {
			vals = append(vals, r.Estimate)
		}
	}
	return vals
}

func TestSample_RecoversPopulationEffect(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Participants = 60
	cfg.Seed = 7
	cfg.EffectSpread = 0.1
	cfg.NoiseSD = 0.4

	rows := testRows(t, cfg)
	model, err := NewModel(rows, testConfig(7))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	posterior, err := model.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	// True population contrast 1 is 0.5*effA + 0.5*effB = 0.5.
	pooled := posterior.PooledContrast(trial.ContrastInstabilityVsStability)
	if math.Abs(pooled.Estimate-0.5) > 0.25 {
		t.Fatalf("pooled instability-vs-stability estimate %.3f too far from true 0.5", pooled.Estimate)
	}
	if !(pooled.Lower < pooled.Estimate && pooled.Estimate < pooled.Upper) {
		t.Fatalf("interval [%.3f, %.3f] does not bracket the estimate %.3f",
			pooled.Lower, pooled.Upper, pooled.Estimate)
	}
}

func TestSample_DeterministicForSeed(t *testing.T) {
	rows := testRows(t, synth.DefaultConfig())

	run := func() []trial.ContrastEstimate {
		model, err := NewModel(rows, testConfig(99))
		if err != nil {
			t.Fatalf("new model: %v", err)
		}
		posterior, err := model.Sample(context.Background())
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		return posterior.Contrasts()
	}

	first := run()
	second := run()
	for i := range first {
		if first[i].Estimate != second[i].Estimate {
			t.Fatalf("estimate %d differs across identically seeded runs: %v vs %v",
				i, first[i].Estimate, second[i].Estimate)
		}
	}
}

func TestSample_RHatNearOne(t *testing.T) {
	rows := testRows(t, synth.DefaultConfig())
	model, err := NewModel(rows, testConfig(3))
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	posterior, err := model.Sample(context.Background())
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	rhats, err := posterior.RHat()
	if err != nil {
		t.Fatalf("rhat: %v", err)
	}
	for k, r := range rhats {
		if math.IsNaN(r) || r > 1.2 {
			t.Fatalf("coefficient %d: R-hat %.3f indicates the chains did not mix", k, r)
		}
	}
}

func TestNewModel_RejectsEmptyOutcome(t *testing.T) {
	rows := testRows(t, synth.DefaultConfig())
	delete(rows, trial.OutcomeCorsi)
	if _, err := NewModel(rows, testConfig(1)); err == nil {
		t.Fatal("expected error when an outcome has no rows")
	}
}
