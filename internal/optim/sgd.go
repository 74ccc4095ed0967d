package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	sgd.Update(params, grads)
type SGD struct {
	lr       float64
	momentum float64
	velocity []float64
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.1)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD updater.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.1
	}
	return &SGD{lr: config.LR, momentum: config.Momentum}
}

// Update applies one step. Velocity is allocated on first use and
// reallocated if the parameter count changes.
func (s *SGD) Update(params, grad []float64) {
	if s.momentum == 0 {
		floats.AddScaled(params, -s.lr, grad)
		return
	}
	if len(s.velocity) != len(params) {
		s.velocity = make([]float64, len(params))
	}
	floats.Scale(s.momentum, s.velocity)
	floats.Add(s.velocity, grad)
	floats.AddScaled(params, -s.lr, s.velocity)
}

// LearningRate returns the current learning rate.
func (s *SGD) LearningRate() float64 { return s.lr }

// SetLearningRate replaces the learning rate.
func (s *SGD) SetLearningRate(lr float64) { s.lr = lr }

// Momentum returns the momentum factor.
func (s *SGD) Momentum() float64 { return s.momentum }

// State returns a copy of the velocity (empty without momentum).
func (s *SGD) State() []float64 {
	return append([]float64(nil), s.velocity...)
}

// SetState restores the velocity.
func (s *SGD) SetState(state []float64) error {
	if s.momentum == 0 && len(state) > 0 {
		return fmt.Errorf("optim: SGD without momentum has no state, got %d values", len(state))
	}
	if len(state) == 0 {
		s.velocity = nil
		return nil
	}
	s.velocity = append([]float64(nil), state...)
	return nil
}
