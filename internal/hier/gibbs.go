package hier

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"cogtrial/domain/trial"
)

// Draw is one retained posterior draw of everything the contrast derivation
// needs: the fixed effects and the per-outcome deviations.
type Draw struct {
	Beta   []float64
	U      [][]float64 // outcome deviations, indexed like Model.outcomes
	Sigma  float64     // residual SD, kept for diagnostics
	TauOut []float64   // outcome-level random-effect SDs
}

// chainState is the full parameter state of one Markov chain.
type chainState struct {
	beta   []float64
	u      [][]float64 // per outcome
	v      [][]float64 // per participant
	sigma2 float64

	sigmaU    *mat.SymDense // outcome-level covariance
	sigmaUInv *mat.SymDense
	auxU      []float64 // Huang-Wand auxiliary scales

	sigmaV    *mat.SymDense // participant-level covariance
	sigmaVInv *mat.SymDense
	auxV      []float64
}

// Sample runs the configured number of independent chains, in parallel,
// discards each chain's warmup and pools the retained draws. No ordering
// across chains is assumed; the pooled draws are one posterior sample set.
func (m *Model) Sample(ctx context.Context) (*Posterior, error) {
	chains := make([][]Draw, m.cfg.Chains)

	g, ctx := errgroup.WithContext(ctx)
	for c := 0; c < m.cfg.Chains; c++ {
		g.Go(func() error {
			draws, err := m.runChain(ctx, c)
			if err != nil {
				return fmt.Errorf("chain %d: %w", c, err)
			}
			chains[c] = draws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Posterior{Outcomes: m.outcomes, ChainDraws: chains}, nil
}

// runChain executes warmup + retained iterations of the blocked Gibbs sampler.
func (m *Model) runChain(ctx context.Context, chain int) ([]Draw, error) {
	p := trial.NumCoef
	src := rand.NewPCG(uint64(m.cfg.Seed), uint64(chain)+1)

	st := &chainState{
		beta:      make([]float64, p),
		u:         zeroMatrixRows(m.NumOutcomes(), p),
		v:         zeroMatrixRows(m.NumParticipants(), p),
		sigma2:    1,
		sigmaU:    identity(p),
		sigmaUInv: identity(p),
		auxU:      ones(p),
		sigmaV:    identity(p),
		sigmaVInv: identity(p),
		auxV:      ones(p),
	}

	total := m.cfg.Warmup + m.cfg.Iterations
	draws := make([]Draw, 0, m.cfg.Iterations)
	for iter := 0; iter < total; iter++ {
		if iter%100 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		if err := m.step(st, src); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}

		if iter < m.cfg.Warmup {
			continue
		}
		draw := m.record(st)
		if !draw.finite() {
			return nil, fmt.Errorf("iteration %d: non-finite draw, sampler diverged", iter)
		}
		draws = append(draws, draw)
	}
	return draws, nil
}

// step performs one full scan of the Gibbs updates. Every block is a
// conjugate update: multivariate normal for the fixed and random effects,
// inverse-Wishart/inverse-gamma for the covariances and their Huang-Wand
// auxiliaries, inverse-gamma for the residual variance.
func (m *Model) step(st *chainState, src rand.Source) error {
	p := trial.NumCoef

	// Fixed effects beta | rest.
	b := make([]float64, p)
	for _, row := range m.rows {
		resid := row.y - dot(row.x, st.u[row.outcome]) - dot(row.x, st.v[row.participant])
		axpy(b, row.x, resid/st.sigma2)
	}
	prec := scaledSym(m.gramFixed, 1/st.sigma2)
	priorPrec := 1 / (m.cfg.Priors.FixedScale * m.cfg.Priors.FixedScale)
	for k := 0; k < p; k++ {
		prec.SetSym(k, k, prec.At(k, k)+priorPrec)
	}
	var err error
	if st.beta, err = sampleGaussianByPrecision(b, prec, src); err != nil {
		return fmt.Errorf("fixed effects: %w", err)
	}

	// Outcome deviations u_j | rest.
	for j, rowIdx := range m.rowsByOutcome {
		b = make([]float64, p)
		for _, r := range rowIdx {
			row := m.rows[r]
			resid := row.y - dot(row.x, st.beta) - dot(row.x, st.v[row.participant])
			axpy(b, row.x, resid/st.sigma2)
		}
		prec := scaledSym(m.gramOutcome[j], 1/st.sigma2)
		addSym(prec, st.sigmaUInv)
		if st.u[j], err = sampleGaussianByPrecision(b, prec, src); err != nil {
			return fmt.Errorf("outcome deviation %d: %w", j, err)
		}
	}

	// Participant deviations v_i | rest.
	for i, rowIdx := range m.rowsByParticipant {
		b = make([]float64, p)
		for _, r := range rowIdx {
			row := m.rows[r]
			resid := row.y - dot(row.x, st.beta) - dot(row.x, st.u[row.outcome])
			axpy(b, row.x, resid/st.sigma2)
		}
		prec := scaledSym(m.gramParticipant[i], 1/st.sigma2)
		addSym(prec, st.sigmaVInv)
		if st.v[i], err = sampleGaussianByPrecision(b, prec, src); err != nil {
			return fmt.Errorf("participant deviation %d: %w", i, err)
		}
	}

	// Covariances and their auxiliaries.
	if err = m.updateCovariance(st.u, &st.sigmaU, &st.sigmaUInv, st.auxU, src); err != nil {
		return fmt.Errorf("outcome covariance: %w", err)
	}
	if err = m.updateCovariance(st.v, &st.sigmaV, &st.sigmaVInv, st.auxV, src); err != nil {
		return fmt.Errorf("participant covariance: %w", err)
	}

	// Residual variance sigma2 | rest.
	ssr := 0.0
	for _, row := range m.rows {
		e := row.y - dot(row.x, st.beta) - dot(row.x, st.u[row.outcome]) - dot(row.x, st.v[row.participant])
		ssr += e * e
	}
	shape := m.cfg.Priors.ResidualShape + float64(len(m.rows))/2
	rate := m.cfg.Priors.ResidualRate + ssr/2
	st.sigma2 = invGamma(shape, rate, src)

	return nil
}

// updateCovariance draws one grouping's covariance matrix and its Huang-Wand
// auxiliary scales. With nu=1 the implied prior on each random-effect SD is
// half-Cauchy(0, SDScale) while both full conditionals stay conjugate:
//
//	Sigma | effects, aux ~ InvWishart(nu+p-1+J, 2*nu*diag(1/aux) + sum_j e_j e_j')
//	aux_k | Sigma        ~ InvGamma((nu+p)/2, nu*(Sigma^-1)_kk + 1/SDScale^2)
func (m *Model) updateCovariance(effects [][]float64, sigma, sigmaInv **mat.SymDense, aux []float64, src rand.Source) error {
	const nu = 1.0
	p := trial.NumCoef
	a := m.cfg.Priors.SDScale

	scale := mat.NewSymDense(p, nil)
	for k := 0; k < p; k++ {
		scale.SetSym(k, k, 2*nu/aux[k])
	}
	for _, e := range effects {
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				scale.SetSym(i, j, scale.At(i, j)+e[i]*e[j])
			}
		}
	}

	df := nu + float64(p) - 1 + float64(len(effects))
	drawn, err := sampleInvWishart(df, scale, src)
	if err != nil {
		return err
	}
	inv, err := invertSym(drawn)
	if err != nil {
		return err
	}
	*sigma = drawn
	*sigmaInv = inv

	for k := 0; k < p; k++ {
		aux[k] = invGamma((nu+float64(p))/2, nu*inv.At(k, k)+1/(a*a), src)
	}
	return nil
}

// record copies the retained state into an immutable draw.
func (m *Model) record(st *chainState) Draw {
	p := trial.NumCoef
	draw := Draw{
		Beta:   append([]float64(nil), st.beta...),
		U:      make([][]float64, len(st.u)),
		Sigma:  math.Sqrt(st.sigma2),
		TauOut: make([]float64, p),
	}
	for j := range st.u {
		draw.U[j] = append([]float64(nil), st.u[j]...)
	}
	for k := 0; k < p; k++ {
		draw.TauOut[k] = math.Sqrt(st.sigmaU.At(k, k))
	}
	return draw
}

func (d Draw) finite() bool {
	for _, v := range d.Beta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, u := range d.U {
		for _, v := range u {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return !math.IsNaN(d.Sigma) && !math.IsInf(d.Sigma, 0)
}

// sampleGaussianByPrecision draws from N(P^-1 b, P^-1) given the precision
// matrix P and the unnormalized mean vector b.
func sampleGaussianByPrecision(b []float64, precision *mat.SymDense, src rand.Source) ([]float64, error) {
	cov, err := invertSym(precision)
	if err != nil {
		return nil, err
	}
	mean := symMulVec(cov, b)
	normal, ok := distmv.NewNormal(mean, cov, src)
	if !ok {
		return nil, fmt.Errorf("conditional covariance is not positive definite")
	}
	return normal.Rand(nil), nil
}

// sampleInvWishart draws Sigma ~ InvWishart(df, scale) by inverting a
// Wishart(df, scale^-1) draw.
func sampleInvWishart(df float64, scale *mat.SymDense, src rand.Source) (*mat.SymDense, error) {
	scaleInv, err := invertSym(scale)
	if err != nil {
		return nil, err
	}
	wishart, ok := distmat.NewWishart(scaleInv, df, src)
	if !ok {
		return nil, fmt.Errorf("invalid Wishart parameters (df=%.1f)", df)
	}
	n := scale.SymmetricDim()
	w := mat.NewSymDense(n, nil)
	wishart.RandSymTo(w)
	return invertSym(w)
}

// invGamma draws from InvGamma(shape, rate) via a Gamma draw on the precision
// scale.
func invGamma(shape, rate float64, src rand.Source) float64 {
	g := distuv.Gamma{Alpha: shape, Beta: rate, Src: src}
	return 1 / g.Rand()
}

func invertSym(s *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, fmt.Errorf("matrix is not positive definite")
	}
	n := s.SymmetricDim()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Small dense helpers; the design is 4-dimensional so plain loops beat
// general matrix machinery here.

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// axpy accumulates dst += x*scale.
func axpy(dst, x []float64, scale float64) {
	for i := range dst {
		dst[i] += x[i] * scale
	}
}

func symMulVec(s *mat.SymDense, v []float64) []float64 {
	n := s.SymmetricDim()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i] += s.At(i, j) * v[j]
		}
	}
	return out
}

func scaledSym(s *mat.SymDense, f float64) *mat.SymDense {
	n := s.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, s.At(i, j)*f)
		}
	}
	return out
}

func addSym(dst, src *mat.SymDense) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, dst.At(i, j)+src.At(i, j))
		}
	}
}

func identity(n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func zeroMatrixRows(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
