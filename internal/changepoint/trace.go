package changepoint

import "fmt"

// ParamNames lists the latent variables in reporting order
var ParamNames = []string{"tau1", "tau2", "mu1", "mu2", "mu3", "sigma"}

// Chain is the retained output of one Markov chain
type Chain struct {
	Draws           []State `msgpack:"draws" json:"draws"`
	SigmaAcceptance float64 `msgpack:"sigma_acceptance" json:"sigma_acceptance"`
	JumpAcceptance  float64 `msgpack:"jump_acceptance" json:"jump_acceptance"`
	SigmaStep       float64 `msgpack:"sigma_step" json:"sigma_step"`
}

// SampleSet holds every chain drawn for one axis. Nothing mutates it after
// Sample returns.
type SampleSet struct {
	N      int     `msgpack:"n" json:"n"`
	MinGap int     `msgpack:"min_gap" json:"min_gap"`
	Chains []Chain `msgpack:"chains" json:"chains"`
}

// Len returns the total number of retained draws across chains
func (s *SampleSet) Len() int {
	var n int
	for _, c := range s.Chains {
		n += len(c.Draws)
	}
	return n
}

// Value extracts a named parameter from a draw
func Value(st State, param string) (float64, error) {
	switch param {
	case "tau1":
		return float64(st.Tau1), nil
	case "tau2":
		return float64(st.Tau2), nil
	case "mu1":
		return st.Mu[0], nil
	case "mu2":
		return st.Mu[1], nil
	case "mu3":
		return st.Mu[2], nil
	case "sigma":
		return st.Sigma, nil
	}
	return 0, fmt.Errorf("unknown parameter %q", param)
}

// PerChain returns the trace of param for every chain
func (s *SampleSet) PerChain(param string) ([][]float64, error) {
	out := make([][]float64, len(s.Chains))
	for i, c := range s.Chains {
		out[i] = make([]float64, len(c.Draws))
		for j, d := range c.Draws {
			v, err := Value(d, param)
			if err != nil {
				return nil, err
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// Flatten returns the draws of param from all chains, chain by chain
func (s *SampleSet) Flatten(param string) ([]float64, error) {
	chains, err := s.PerChain(param)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, s.Len())
	for _, c := range chains {
		out = append(out, c...)
	}
	return out, nil
}

// ViolatesGap counts draws that break tau2 > tau1 + MinGap
func (s *SampleSet) ViolatesGap() int {
	var bad int
	for _, c := range s.Chains {
		for _, d := range c.Draws {
			if d.Tau2 <= d.Tau1+s.MinGap {
				bad++
			}
		}
	}
	return bad
}
