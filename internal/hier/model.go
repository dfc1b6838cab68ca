// Package hier fits a single Bayesian multilevel linear model jointly across
// all outcomes and participants:
//
//	post_z = x'beta + x'u[outcome] + x'v[participant] + e
//
// with x = (1, pre_z, stabilityA, stabilityB). The intercept, the pre_z slope
// and both group effects vary by outcome and, independently, by participant;
// each grouping carries a full covariance among its four varying coefficients.
// Because the outcome deviations share one covariance prior, per-outcome
// contrast estimates are shrunk toward the population-average effect.
//
// Priors: fixed effects Normal(0, 2.5); random-effect standard deviations
// half-Cauchy(0, 2.5), realized through the Huang-Wand (2013) hierarchical
// inverse-Wishart construction at nu=1, which keeps every full conditional
// conjugate and gives exactly half-Cauchy SD marginals.
package hier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cogtrial/domain/trial"
)

// Priors holds the hyperparameters of the multilevel model.
type Priors struct {
	FixedScale    float64 // SD of the Normal prior on each fixed effect
	SDScale       float64 // scale of the half-Cauchy prior on random-effect SDs
	ResidualShape float64 // inverse-gamma shape for the residual variance
	ResidualRate  float64 // inverse-gamma rate for the residual variance
}

// DefaultPriors returns the model's weakly informative prior settings.
func DefaultPriors() Priors {
	return Priors{
		FixedScale:    2.5,
		SDScale:       2.5,
		ResidualShape: 0.001,
		ResidualRate:  0.001,
	}
}

// Config controls the MCMC run.
type Config struct {
	Seed       int64
	Chains     int
	Iterations int // retained draws per chain
	Warmup     int // discarded adaptation draws per chain
	Priors     Priors
}

// DefaultConfig returns sampler settings suitable for the report run.
func DefaultConfig() Config {
	return Config{
		Seed:       42,
		Chains:     4,
		Iterations: 2000,
		Warmup:     1000,
		Priors:     DefaultPriors(),
	}
}

// dataRow is one observation with its design vector and index positions.
type dataRow struct {
	x           []float64
	y           float64
	outcome     int
	participant int
}

// Model is the prepared design: flattened rows plus the per-group row lists
// and Gram matrices the Gibbs updates reuse every iteration.
type Model struct {
	rows         []dataRow
	outcomes     []trial.Outcome
	participants []int // participant IDs in index order

	rowsByOutcome     [][]int // row indices per outcome index
	rowsByParticipant [][]int // row indices per participant index

	gramFixed       *mat.SymDense   // X'X over all rows
	gramOutcome     []*mat.SymDense // X_j'X_j per outcome
	gramParticipant []*mat.SymDense // X_i'X_i per participant

	cfg Config
}

// NewModel prepares the joint design from the same per-outcome rows the
// single-level fits consume.
func NewModel(rowsByOutcome map[trial.Outcome][]trial.ModelRow, cfg Config) (*Model, error) {
	if cfg.Chains < 1 || cfg.Iterations < 1 || cfg.Warmup < 0 {
		return nil, fmt.Errorf("invalid sampler config: chains=%d iterations=%d warmup=%d", cfg.Chains, cfg.Iterations, cfg.Warmup)
	}
	if cfg.Priors.FixedScale <= 0 || cfg.Priors.SDScale <= 0 {
		return nil, fmt.Errorf("prior scales must be positive")
	}

	m := &Model{cfg: cfg}

	participantIdx := make(map[int]int)
	for outcomeIdx, outcome := range trial.Outcomes() {
		rows := rowsByOutcome[outcome]
		if len(rows) == 0 {
			return nil, fmt.Errorf("outcome %s has no rows after missing-data exclusion", outcome)
		}
		m.outcomes = append(m.outcomes, outcome)
		m.rowsByOutcome = append(m.rowsByOutcome, nil)

		for _, row := range rows {
			pIdx, ok := participantIdx[row.Participant]
			if !ok {
				pIdx = len(m.participants)
				participantIdx[row.Participant] = pIdx
				m.participants = append(m.participants, row.Participant)
				m.rowsByParticipant = append(m.rowsByParticipant, nil)
			}
			rowIdx := len(m.rows)
			m.rows = append(m.rows, dataRow{
				x:           row.Design(),
				y:           row.PostZ,
				outcome:     outcomeIdx,
				participant: pIdx,
			})
			m.rowsByOutcome[outcomeIdx] = append(m.rowsByOutcome[outcomeIdx], rowIdx)
			m.rowsByParticipant[pIdx] = append(m.rowsByParticipant[pIdx], rowIdx)
		}
	}

	if len(m.rows) <= trial.NumCoef {
		return nil, fmt.Errorf("too few rows (%d) for the multilevel design", len(m.rows))
	}

	m.gramFixed = gram(m.rows, allIndices(len(m.rows)))
	for _, idx := range m.rowsByOutcome {
		m.gramOutcome = append(m.gramOutcome, gram(m.rows, idx))
	}
	for _, idx := range m.rowsByParticipant {
		m.gramParticipant = append(m.gramParticipant, gram(m.rows, idx))
	}

	return m, nil
}

// NumOutcomes returns the count of outcome groups in the design.
func (m *Model) NumOutcomes() int { return len(m.outcomes) }

// NumParticipants returns the count of participant groups in the design.
func (m *Model) NumParticipants() int { return len(m.participants) }

// NumRows returns the total observation count.
func (m *Model) NumRows() int { return len(m.rows) }

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// gram accumulates sum over rows of x*x' for the given row indices.
func gram(rows []dataRow, idx []int) *mat.SymDense {
	p := trial.NumCoef
	g := mat.NewSymDense(p, nil)
	for _, r := range idx {
		x := rows[r].x
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				g.SetSym(i, j, g.At(i, j)+x[i]*x[j])
			}
		}
	}
	return g
}
