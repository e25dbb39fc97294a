package changepoint

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ScreenConfig controls the PELT pre-screen used to seed the first chain
type ScreenConfig struct {
	// Cost is "l2" (mean shift) or "rbf" (kernel)
	Cost string `yaml:"cost" json:"cost"`

	// Kernel is the median filter width applied before PELT; 1 disables it
	Kernel int `yaml:"kernel" json:"kernel"`

	// Penalty per breakpoint; 0 picks one from the series noise level
	Penalty float64 `yaml:"penalty" json:"penalty"`

	// Jump subsamples candidate breakpoints
	Jump int `yaml:"jump" json:"jump"`

	Disabled bool `yaml:"disabled" json:"disabled"`
}

// DefaultScreenConfig returns an L2 screen on 5-point median filtered data
func DefaultScreenConfig() ScreenConfig {
	return ScreenConfig{
		Cost:   "l2",
		Kernel: 5,
		Jump:   1,
	}
}

// PeltDetector implements Pruned Exact Linear Time segmentation over a
// pluggable segment cost
type PeltDetector struct {
	cost    Cost
	minSize int
	jump    int
	n       int
}

// NewPeltDetector creates a PELT detector
func NewPeltDetector(cost Cost, minSize, jump int) *PeltDetector {
	if minSize < 1 {
		minSize = 1
	}
	if jump < 1 {
		jump = 1
	}
	return &PeltDetector{
		cost:    cost,
		minSize: minSize,
		jump:    jump,
	}
}

// Fit sets the signal for segmentation
func (p *PeltDetector) Fit(signal []float64) {
	p.n = len(signal)
	p.cost.Fit(signal)
}

// Predict returns the optimal segment ends for the given penalty, in
// ascending order. The last element is always the signal length.
func (p *PeltDetector) Predict(penalty float64) []int {
	if p.n == 0 {
		return nil
	}

	// best[t] is the optimal penalised cost of signal[0:t] and last[t] the
	// start of its final segment
	best := map[int]float64{0: 0}
	last := map[int]int{0: 0}

	// Candidate segment ends
	ind := []int{}
	for k := 0; k < p.n; k += p.jump {
		if k >= p.minSize {
			ind = append(ind, k)
		}
	}
	ind = append(ind, p.n)

	admissible := []int{}
	for _, bkp := range ind {
		newAdmPt := int(math.Floor(float64(bkp-p.minSize)/float64(p.jump))) * p.jump
		admissible = append(admissible, newAdmPt)

		type candidate struct {
			start int
			cost  float64
		}
		var cands []candidate
		minCost := math.Inf(1)
		argMin := -1
		for _, t := range admissible {
			prev, ok := best[t]
			if !ok {
				continue
			}
			c := prev + p.cost.Error(t, bkp) + penalty
			cands = append(cands, candidate{start: t, cost: c})
			if c < minCost {
				minCost, argMin = c, t
			}
		}
		if argMin < 0 {
			continue
		}
		best[bkp] = minCost
		last[bkp] = argMin

		// Keep only starts that could still be optimal later on
		pruned := admissible[:0]
		for _, c := range cands {
			if c.cost <= minCost+penalty {
				pruned = append(pruned, c.start)
			}
		}
		admissible = pruned
	}

	if _, ok := best[p.n]; !ok {
		return []int{p.n}
	}
	bkps := []int{}
	for t := p.n; t > 0; t = last[t] {
		bkps = append(bkps, t)
	}
	sort.Ints(bkps)
	return bkps
}

// noiseVariance estimates the observation variance from the median absolute
// deviation of first differences, which is insensitive to a few mean shifts
func noiseVariance(y []float64) float64 {
	if len(y) < 3 {
		return stat.Variance(y, nil)
	}
	diffs := make([]float64, len(y)-1)
	for i := range diffs {
		diffs[i] = y[i+1] - y[i]
	}
	sort.Float64s(diffs)
	med := stat.Quantile(0.5, stat.Empirical, diffs, nil)
	for i, d := range diffs {
		diffs[i] = math.Abs(d - med)
	}
	sort.Float64s(diffs)
	mad := stat.Quantile(0.5, stat.Empirical, diffs, nil)
	sd := 1.4826 * mad / math.Sqrt2
	return sd * sd
}

// Screen runs PELT on the median filtered series and returns the segment ends
func Screen(y []float64, minSize int, cfg ScreenConfig) ([]int, error) {
	signal := y
	if cfg.Kernel > 1 {
		var err error
		signal, err = MedFilt(y, cfg.Kernel)
		if err != nil {
			return nil, err
		}
	}
	cost, err := NewCost(cfg.Cost)
	if err != nil {
		return nil, err
	}

	penalty := cfg.Penalty
	if penalty <= 0 {
		logN := math.Log(float64(len(y)))
		switch cost.(type) {
		case *RBFCost:
			penalty = 2 * logN
		default:
			penalty = 2 * noiseVariance(y) * logN
			if penalty <= 0 {
				penalty = logN
			}
		}
	}

	pelt := NewPeltDetector(cost, minSize, cfg.Jump)
	pelt.Fit(signal)
	return pelt.Predict(penalty), nil
}

// InitialState screens the series and returns the breakpoint pair, among
// those PELT found, whose three-segment least-squares fit is best while
// honouring the gap. ok is false when no admissible pair exists.
func (m *Model) InitialState(cfg ScreenConfig) (st State, bkps []int, ok bool, err error) {
	minSize := m.priors.MinGap / 2
	if minSize < 2 {
		minSize = 2
	}
	bkps, err = Screen(m.y, minSize, cfg)
	if err != nil {
		return State{}, nil, false, err
	}

	// a segment ending at e has its last index at e-1
	var taus []int
	for _, e := range bkps {
		if e < m.N() {
			taus = append(taus, e-1)
		}
	}

	bestSSE := math.Inf(1)
	for i, t1 := range taus {
		for _, t2 := range taus[i+1:] {
			cand := m.fitState(t1, t2)
			if !m.InSupport(cand) {
				continue
			}
			if sse := m.totalSSE(cand); sse < bestSSE {
				bestSSE, st, ok = sse, cand, true
			}
		}
	}
	return st, bkps, ok, nil
}
