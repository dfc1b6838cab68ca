package singlelevel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"cogtrial/domain/trial"
)

// FitResult holds one outcome's OLS fit of post_z ~ pre_z + group.
// Coef order matches trial.ModelRow.Design: intercept, pre_z, stabilityA,
// stabilityB (instability is the reference level).
type FitResult struct {
	Outcome  trial.Outcome
	N        int
	Coef     []float64
	Cov      *mat.SymDense // sigma2 * (X'X)^-1
	Sigma2   float64
	PreZMean float64
}

// Fit runs ordinary least squares for a single outcome. Each outcome is fit
// fully independently; no information is shared across outcomes or
// participants beyond this one regression.
func Fit(outcome trial.Outcome, rows []trial.ModelRow) (*FitResult, error) {
	n := len(rows)
	p := trial.NumCoef
	if n <= p {
		return nil, fmt.Errorf("outcome %s: %d rows is too few for %d coefficients", outcome, n, p)
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	preZSum := 0.0
	for i, row := range rows {
		x.SetRow(i, row.Design())
		y.SetVec(i, row.PostZ)
		preZSum += row.PreZ
	}

	var qr mat.QR
	qr.Factorize(x)
	var coefMat mat.Dense
	if err := qr.SolveTo(&coefMat, false, y); err != nil {
		return nil, fmt.Errorf("outcome %s: singular design matrix: %w", outcome, err)
	}
	coef := make([]float64, p)
	for k := 0; k < p; k++ {
		coef[k] = coefMat.At(k, 0)
	}

	// Residual variance and coefficient covariance sigma2 * (X'X)^-1.
	rss := 0.0
	for _, row := range rows {
		pred := 0.0
		for k, xv := range row.Design() {
			pred += coef[k] * xv
		}
		resid := row.PostZ - pred
		rss += resid * resid
	}
	sigma2 := rss / float64(n-p)

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("outcome %s: X'X not invertible: %w", outcome, err)
	}

	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			cov.SetSym(i, j, sigma2*xtxInv.At(i, j))
		}
	}

	fit := &FitResult{
		Outcome:  outcome,
		N:        n,
		Coef:     coef,
		Cov:      cov,
		Sigma2:   sigma2,
		PreZMean: preZSum / float64(n),
	}
	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("outcome %s: non-finite coefficient in OLS fit", outcome)
		}
	}
	return fit, nil
}

// EMM returns the estimated marginal mean of post_z for a group, holding
// pre_z at its sample mean.
func (f *FitResult) EMM(g trial.Group) float64 {
	emm := f.Coef[0] + f.Coef[1]*f.PreZMean
	switch g {
	case trial.GroupStabilityA:
		emm += f.Coef[2]
	case trial.GroupStabilityB:
		emm += f.Coef[3]
	}
	return emm
}
