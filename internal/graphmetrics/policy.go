package graphmetrics

// ConvergencePolicy decides when authority propagation stops.
// Check is called after every iteration with the 1-based iteration number
// and the L1 distance between the previous and current score vectors.
type ConvergencePolicy interface {
	Check(iteration int, delta float64) (stop bool, converged bool)
}

// EpsilonPolicy stops once delta drops below Epsilon or MaxIterations is reached
type EpsilonPolicy struct {
	Epsilon       float64
	MaxIterations int
}

// DefaultPolicy returns the 1e-6 / 100 iterations policy
func DefaultPolicy() EpsilonPolicy {
	return EpsilonPolicy{Epsilon: 1e-6, MaxIterations: 100}
}

// Check implements ConvergencePolicy
func (p EpsilonPolicy) Check(iteration int, delta float64) (bool, bool) {
	if delta < p.Epsilon {
		return true, true
	}
	if iteration >= p.MaxIterations {
		return true, false
	}
	return false, false
}
