package bayesian

import (
	"time"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// MaxIterations stops the run after N iterations of the current run.
type MaxIterations struct {
	N int
}

func (m *MaxIterations) Stop(s *optimization.RunState) bool {
	return s.CurrentIteration >= m.N
}

// MaxDuration stops the run once the elapsed wall time reaches D.
type MaxDuration struct {
	D time.Duration
}

func (m *MaxDuration) Stop(s *optimization.RunState) bool {
	return s.Elapsed >= m.D
}

// TargetReward stops the run once the best aggregated reward reaches the
// target.
type TargetReward struct {
	Target float64
}

func (t *TargetReward) Stop(s *optimization.RunState) bool {
	return s.BestObservation != nil && s.BestReward >= t.Target
}
