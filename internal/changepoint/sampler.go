package changepoint

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chrissnell/gnsschange/internal/gnss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SamplerConfig controls the MCMC run for one series
type SamplerConfig struct {
	// Draws is the number of retained draws per chain
	Draws int `yaml:"samples" json:"samples"`

	// Tune is the number of warm-up iterations per chain. The sigma proposal
	// scale adapts during warm-up and is frozen afterwards.
	Tune int `yaml:"tune" json:"tune"`

	// Chains is the number of independent chains, run concurrently
	Chains int `yaml:"chains" json:"chains"`

	// Seed selects the random streams; chain i uses PCG(Seed, i+1)
	Seed uint64 `yaml:"seed" json:"seed"`
}

// DefaultSamplerConfig returns 4 chains of 2000 draws after 1000 warm-up steps
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Draws:  2000,
		Tune:   1000,
		Chains: 4,
		Seed:   1,
	}
}

// Validate checks the sample budget
func (c SamplerConfig) Validate() error {
	if c.Draws <= 0 {
		return gnss.Configf("samples", "must be a positive integer, got %d", c.Draws)
	}
	if c.Tune < 0 {
		return gnss.Configf("tune", "must be >= 0, got %d", c.Tune)
	}
	if c.Chains <= 0 {
		return gnss.Configf("chains", "must be a positive integer, got %d", c.Chains)
	}
	return nil
}

const (
	// sigma proposal adaptation targets the optimal 1-D random walk rate
	targetAcceptance = 0.44
	adaptBatch       = 50
	initialLogStep   = -2.0
)

// Sampler draws from a Model's posterior with a blocked Gibbs scheme:
//
//  1. independence Metropolis moves on (tau1, tau2) with the means
//     integrated out, proposing tau1 (then tau2) uniformly and the partner
//     from its conditional
//  2. exact collapsed Gibbs updates of tau1 | tau2 and tau2 | tau1
//  3. conjugate Normal updates of mu1..mu3
//  4. adaptive random-walk Metropolis on log(sigma)
type Sampler struct {
	cfg    SamplerConfig
	logger *zap.SugaredLogger
}

// NewSampler validates cfg and returns a sampler
func NewSampler(cfg SamplerConfig, logger *zap.SugaredLogger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sampler{cfg: cfg, logger: logger}, nil
}

// Config returns the sampler configuration
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample runs all chains concurrently and returns the retained draws. If init
// is non-nil and in the model support, chain 0 starts there; the other chains
// start from dispersed random states.
func (s *Sampler) Sample(ctx context.Context, m *Model, init *State) (*SampleSet, error) {
	chains := make([]Chain, s.cfg.Chains)

	g, gctx := errgroup.WithContext(ctx)
	for i := range chains {
		g.Go(func() error {
			src := rand.NewPCG(s.cfg.Seed, uint64(i)+1)
			r := newRunner(m, src)

			start := r.dispersedState()
			if i == 0 && init != nil && m.InSupport(*init) {
				start = *init
			}

			c, err := r.run(gctx, start, s.cfg.Tune, s.cfg.Draws)
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			chains[i] = c
			s.logger.Debugf("chain %d finished: sigma acceptance %.2f, jump acceptance %.2f",
				i, c.SigmaAcceptance, c.JumpAcceptance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SampleSet{
		N:      m.N(),
		MinGap: m.priors.MinGap,
		Chains: chains,
	}, nil
}

// runner holds the per-chain state. It is never shared between goroutines.
type runner struct {
	m   *Model
	src rand.Source
	rng *rand.Rand

	logStep float64

	// scratch buffers sized for the largest tau support
	logw []float64
	w    []float64
}

func newRunner(m *Model, src rand.Source) *runner {
	return &runner{
		m:       m,
		src:     src,
		rng:     rand.New(src),
		logStep: initialLogStep,
		logw:    make([]float64, m.N()),
		w:       make([]float64, m.N()),
	}
}

// dispersedState draws uniform changepoints and fits means and sigma to them
func (r *runner) dispersedState() State {
	lo1, hi1 := r.m.Tau1Range()
	tau1 := lo1 + r.rng.IntN(hi1-lo1+1)
	lo2, hi2 := r.m.Tau2Range(tau1)
	tau2 := lo2 + r.rng.IntN(hi2-lo2+1)
	return r.m.fitState(tau1, tau2)
}

// fitState returns the least-squares means and noise scale for fixed taus
func (m *Model) fitState(tau1, tau2 int) State {
	s := State{Tau1: tau1, Tau2: tau2}
	for k, b := range m.segmentBounds(tau1, tau2) {
		c, sum, _ := m.stats(b[0], b[1])
		if c > 0 {
			s.Mu[k] = sum / c
		}
	}
	s.Sigma = math.Sqrt(m.totalSSE(s) / float64(m.N()))
	if !(s.Sigma > 1e-6) {
		s.Sigma = stat.StdDev(m.y, nil)
	}
	if !(s.Sigma > 1e-6) {
		s.Sigma = 1e-6
	}
	return s
}

func (r *runner) run(ctx context.Context, st State, tune, draws int) (Chain, error) {
	if !r.m.InSupport(st) {
		return Chain{}, &gnss.NumericalError{Msg: fmt.Sprintf("initial state %+v is outside the support", st)}
	}
	if _, err := r.m.LogPosterior(st); err != nil {
		return Chain{}, err
	}

	c := Chain{Draws: make([]State, 0, draws)}
	var sigmaAcc, batchAcc, jumpAcc, jumpTries int

	for it := 0; it < tune+draws; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return Chain{}, err
			}
		}

		sigma2 := st.Sigma * st.Sigma

		for _, first := range []bool{true, false} {
			ok, err := r.jump(&st, sigma2, first)
			if err != nil {
				return Chain{}, err
			}
			jumpTries++
			if ok {
				jumpAcc++
			}
		}
		if err := r.gibbsTau1(&st, sigma2); err != nil {
			return Chain{}, err
		}
		if err := r.gibbsTau2(&st, sigma2); err != nil {
			return Chain{}, err
		}
		r.updateMeans(&st, sigma2)

		accepted, err := r.updateSigma(&st)
		if err != nil {
			return Chain{}, err
		}

		if it < tune {
			if accepted {
				batchAcc++
			}
			if (it+1)%adaptBatch == 0 {
				r.adapt(batchAcc, (it+1)/adaptBatch)
				batchAcc = 0
			}
			continue
		}

		if accepted {
			sigmaAcc++
		}
		c.Draws = append(c.Draws, st)
	}

	if _, err := r.m.LogPosterior(st); err != nil {
		return Chain{}, err
	}

	c.SigmaAcceptance = float64(sigmaAcc) / float64(draws)
	if jumpTries > 0 {
		c.JumpAcceptance = float64(jumpAcc) / float64(jumpTries)
	}
	c.SigmaStep = math.Exp(r.logStep)
	return c, nil
}

// adapt nudges the log step size after each warm-up batch with a shrinking
// increment so the adaptation dies out
func (r *runner) adapt(accepted, batch int) {
	delta := math.Min(0.1, 1/math.Sqrt(float64(batch)))
	if float64(accepted)/adaptBatch > targetAcceptance {
		r.logStep += delta
	} else {
		r.logStep -= delta
	}
}

// categorical draws an index in [0, len(logw)) with probability proportional
// to exp(logw)
func (r *runner) categorical(logw []float64) (int, error) {
	peak := floats.Max(logw)
	if math.IsInf(peak, -1) || math.IsNaN(peak) {
		return 0, &gnss.NumericalError{Msg: "changepoint conditional has no finite mass"}
	}
	w := r.w[:len(logw)]
	for i, lw := range logw {
		if math.IsNaN(lw) {
			return 0, &gnss.NumericalError{Msg: "changepoint conditional is NaN"}
		}
		w[i] = math.Exp(lw - peak)
	}
	return int(distuv.NewCategorical(w, r.src).Rand()), nil
}

// logNormTau2 returns log sum_{tau2} p(tau1, tau2 | sigma), filling logw
func (r *runner) logNormTau2(tau1 int, sigma2 float64) (lo int, logw []float64, logZ float64) {
	lo, hi := r.m.Tau2Range(tau1)
	logw = r.logw[:hi-lo+1]
	for i := range logw {
		logw[i] = r.m.logCollapsed(tau1, lo+i, sigma2)
	}
	return lo, logw, floats.LogSumExp(logw)
}

// logNormTau1 returns log sum_{tau1} p(tau1, tau2 | sigma), filling logw
func (r *runner) logNormTau1(tau2 int, sigma2 float64) (lo int, logw []float64, logZ float64) {
	lo1, _ := r.m.Tau1Range()
	hi := tau2 - r.m.priors.MinGap - 1
	logw = r.logw[:hi-lo1+1]
	for i := range logw {
		logw[i] = r.m.logCollapsed(lo1+i, tau2, sigma2)
	}
	return lo1, logw, floats.LogSumExp(logw)
}

// jump is an independence Metropolis move on the changepoint pair. With
// first set, tau1' is uniform over its support and tau2' ~ p(tau2 | tau1');
// the acceptance ratio reduces to Z(tau1')/Z(tau1). Otherwise the roles of
// tau1 and tau2 are swapped.
func (r *runner) jump(st *State, sigma2 float64, first bool) (bool, error) {
	if first {
		lo1, hi1 := r.m.Tau1Range()
		prop := lo1 + r.rng.IntN(hi1-lo1+1)
		if prop == st.Tau1 {
			return false, nil
		}
		_, _, logZCur := r.logNormTau2(st.Tau1, sigma2)
		lo, logw, logZProp := r.logNormTau2(prop, sigma2)
		ok, err := r.accept(logZProp, logZCur)
		if !ok || err != nil {
			return false, err
		}
		idx, err := r.categorical(logw)
		if err != nil {
			return false, err
		}
		st.Tau1, st.Tau2 = prop, lo+idx
		return true, nil
	}

	// tau2 can take any value that leaves room for tau1
	lo2 := r.m.priors.MinGap + 1
	hi2 := r.m.N() - 1
	prop := lo2 + r.rng.IntN(hi2-lo2+1)
	if prop == st.Tau2 {
		return false, nil
	}
	_, _, logZCur := r.logNormTau1(st.Tau2, sigma2)
	lo, logw, logZProp := r.logNormTau1(prop, sigma2)
	ok, err := r.accept(logZProp, logZCur)
	if !ok || err != nil {
		return false, err
	}
	idx, err := r.categorical(logw)
	if err != nil {
		return false, err
	}
	st.Tau1, st.Tau2 = lo+idx, prop
	return true, nil
}

// accept is the Metropolis test for log normalisers of the proposed and
// current changepoint pairs
func (r *runner) accept(logZProp, logZCur float64) (bool, error) {
	switch {
	case math.IsNaN(logZProp) || math.IsNaN(logZCur):
		return false, &gnss.NumericalError{Msg: "changepoint normaliser is NaN"}
	case math.IsInf(logZProp, -1):
		return false, nil
	case math.IsInf(logZCur, -1):
		return true, nil
	}
	return math.Log(r.rng.Float64()) < logZProp-logZCur, nil
}

func (r *runner) gibbsTau1(st *State, sigma2 float64) error {
	lo, logw, _ := r.logNormTau1(st.Tau2, sigma2)
	idx, err := r.categorical(logw)
	if err != nil {
		return err
	}
	st.Tau1 = lo + idx
	return nil
}

func (r *runner) gibbsTau2(st *State, sigma2 float64) error {
	lo, logw, _ := r.logNormTau2(st.Tau1, sigma2)
	idx, err := r.categorical(logw)
	if err != nil {
		return err
	}
	st.Tau2 = lo + idx
	return nil
}

func (r *runner) updateMeans(st *State, sigma2 float64) {
	for k, b := range r.m.segmentBounds(st.Tau1, st.Tau2) {
		mean, sd := r.m.meanConditional(b[0], b[1], sigma2)
		st.Mu[k] = distuv.Normal{Mu: mean, Sigma: sd, Src: r.src}.Rand()
	}
}

func (r *runner) updateSigma(st *State) (bool, error) {
	sse := r.m.totalSSE(*st)
	cur := math.Log(st.Sigma)
	prop := cur + math.Exp(r.logStep)*r.rng.NormFloat64()

	lpCur := r.m.logSigmaTarget(cur, sse)
	lpProp := r.m.logSigmaTarget(prop, sse)
	if math.IsNaN(lpCur) || math.IsInf(lpCur, 0) {
		return false, &gnss.NumericalError{Msg: fmt.Sprintf("sigma conditional is not finite at sigma=%g", st.Sigma)}
	}
	if math.IsNaN(lpProp) {
		return false, nil
	}
	if math.Log(r.rng.Float64()) < lpProp-lpCur {
		st.Sigma = math.Exp(prop)
		return true, nil
	}
	return false, nil
}
