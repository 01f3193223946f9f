// Package signal converges an irregular stream of sentiment scores into a
// stable visual value. New results land as a pulse on top of a smoothly
// drifting baseline; the render loop ticks the smoother at whatever cadence
// it likes.
package signal

import (
	"math"
	"sync"
)

const (
	// Easing is the fraction of the remaining distance covered per reference
	// frame. Tuned for a calm drift at 60fps.
	Easing = 0.10

	// PulseDecay shrinks pulse energy per reference frame.
	PulseDecay = 0.86

	// referenceFrameMs anchors the exponential easing so behavior is
	// identical at any real frame rate.
	referenceFrameMs = 1000.0 / 60.0

	// snapEpsilon ends the asymptotic tail: within this distance the current
	// value snaps exactly onto the target.
	snapEpsilon = 0.0005
)

// State is a smoother snapshot. Step is pure over it, so any driving loop
// (render callback, fixed-tick scheduler, test) produces identical motion.
type State struct {
	Current     float64
	Target      float64
	PulseEnergy float64
}

// Step advances the state by dtMs milliseconds and returns the new state.
func Step(s State, dtMs float64) State {
	if dtMs <= 0 {
		return s
	}
	frames := dtMs / referenceFrameMs

	alpha := 1 - math.Pow(1-Easing, frames)
	s.Current += (s.Target - s.Current) * alpha
	if math.Abs(s.Target-s.Current) < snapEpsilon {
		s.Current = s.Target
	}

	s.PulseEnergy *= math.Pow(PulseDecay, frames)
	if s.PulseEnergy < snapEpsilon {
		s.PulseEnergy = 0
	}
	return s
}

// Smoother is the stateful per-session wrapper around Step. Safe for a
// render goroutine ticking while results arrive on another.
type Smoother struct {
	mu    sync.Mutex
	state State
}

// NewSmoother starts at the neutral midpoint.
func NewSmoother() *Smoother {
	return &Smoother{state: State{Current: 0.5, Target: 0.5}}
}

// SetTarget points the baseline at a freshly arrived sentiment value and
// fires the pulse.
func (s *Smoother) SetTarget(sentiment float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Target = sentiment
	s.state.PulseEnergy = 1.0
}

// Tick advances by dtMs milliseconds and returns the displayed value and the
// remaining pulse energy.
func (s *Smoother) Tick(dtMs float64) (current, pulseEnergy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Step(s.state, dtMs)
	return s.state.Current, s.state.PulseEnergy
}

// Snapshot returns the current state without advancing it.
func (s *Smoother) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
