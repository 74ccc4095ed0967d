// Package optim implements the updaters that train a computation graph.
//
// This package provides:
//   - Model: what a solver needs from the thing being trained
//   - Updater: a rule that turns a flat gradient into a parameter step
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//   - Solver: one optimization step (gradient, score, update)
//
// Parameters and gradients are single flat vectors owned by the model, so
// updaters work element-wise on []float64 and keep their own state as flat
// vectors of the same length.
//
// Example usage:
//
//	updater, err := optim.New(cfg.Updater)
//	if err != nil {
//	    return err
//	}
//	solver := optim.NewSolver(updater)
//	for range steps {
//	    if err := solver.OptimizeOneStep(model); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/dagnet/internal/config"
)

// Model is trained by a Solver.
//
// ComputeGradientAndScore runs one forward and backward pass; afterwards
// Gradients returns the flat gradient (same length and layout as Params)
// and Score the loss of that pass. Params returns the live parameter
// vector, which the solver updates in place.
type Model interface {
	ComputeGradientAndScore() error
	Params() []float64
	Gradients() []float64
	Score() float64
}

// Updater applies one step of an update rule.
//
// All updaters must implement:
//   - Update: apply a gradient step to params in place
//   - LearningRate / SetLearningRate: for monitoring and scheduling
type Updater interface {
	// Update subtracts the step derived from grad from params.
	// params and grad have the same length.
	Update(params, grad []float64)

	// LearningRate returns the current learning rate.
	LearningRate() float64

	// SetLearningRate replaces the learning rate. State is kept.
	SetLearningRate(lr float64)
}

// Stateful is implemented by updaters that carry state between steps.
//
// State returns a flat copy suitable for snapshots; SetState restores it.
// An updater that has not stepped yet returns an empty state.
type Stateful interface {
	State() []float64
	SetState(state []float64) error
}

// New builds the updater described by cfg. Zero hyperparameters take the
// defaults documented on each updater.
func New(cfg config.UpdaterConfig) (Updater, error) {
	switch cfg.Type {
	case config.UpdaterSGD, "":
		return NewSGD(SGDConfig{LR: cfg.LearningRate, Momentum: cfg.Momentum}), nil
	case config.UpdaterAdam:
		return NewAdam(AdamConfig{
			LR:    cfg.LearningRate,
			Betas: [2]float64{cfg.Beta1, cfg.Beta2},
			Eps:   cfg.Epsilon,
		}), nil
	default:
		return nil, fmt.Errorf("optim: unknown updater %q", cfg.Type)
	}
}

// Solver runs optimization steps against a Model.
type Solver struct {
	updater Updater
	steps   int
}

// NewSolver wraps u.
func NewSolver(u Updater) *Solver {
	return &Solver{updater: u}
}

// Updater returns the wrapped updater.
func (s *Solver) Updater() Updater { return s.updater }

// Steps returns the number of completed steps.
func (s *Solver) Steps() int { return s.steps }

// LearningRate returns the updater's learning rate.
func (s *Solver) LearningRate() float64 { return s.updater.LearningRate() }

// SetLearningRate replaces the updater's learning rate.
func (s *Solver) SetLearningRate(lr float64) { s.updater.SetLearningRate(lr) }

// OptimizeOneStep computes the gradient and score of m and applies one
// update. A model without parameters is left untouched.
func (s *Solver) OptimizeOneStep(m Model) error {
	if err := m.ComputeGradientAndScore(); err != nil {
		return err
	}
	p := m.Params()
	if len(p) == 0 {
		return nil
	}
	g := m.Gradients()
	if len(g) != len(p) {
		return fmt.Errorf("optim: gradient has %d values, parameters have %d", len(g), len(p))
	}
	s.updater.Update(p, g)
	s.steps++
	return nil
}
