package optim

import (
	"fmt"
	"math"
)

// Adam implements the Adam (Adaptive Moment Estimation) updater.
//
// Adam combines ideas from RMSprop and momentum:
//   - Maintains exponential moving averages of gradients (first moment)
//   - Maintains exponential moving averages of squared gradients (second moment)
//   - Applies bias correction to compensate for initialization at zero
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int       // Timestep for bias correction
	m     []float64 // First moment estimates
	v     []float64 // Second moment estimates
}

// AdamConfig holds configuration for Adam.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam updater with default hyperparameters where
// config leaves them zero.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
	}
}

// Update applies one Adam step:
//  1. Update biased first moment estimate
//  2. Update biased second moment estimate
//  3. Compute bias-corrected moment estimates
//  4. Update parameters
func (a *Adam) Update(params, grad []float64) {
	if len(a.m) != len(params) {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
		a.t = 0
	}
	a.t++

	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

// LearningRate returns the current learning rate.
func (a *Adam) LearningRate() float64 { return a.lr }

// SetLearningRate replaces the learning rate.
func (a *Adam) SetLearningRate(lr float64) { a.lr = lr }

// Step returns the number of updates applied so far.
func (a *Adam) Step() int { return a.t }

// State returns [t, m..., v...], or nothing before the first update.
func (a *Adam) State() []float64 {
	if a.t == 0 {
		return nil
	}
	out := make([]float64, 0, 1+2*len(a.m))
	out = append(out, float64(a.t))
	out = append(out, a.m...)
	return append(out, a.v...)
}

// SetState restores a vector produced by State.
func (a *Adam) SetState(state []float64) error {
	if len(state) == 0 {
		a.t, a.m, a.v = 0, nil, nil
		return nil
	}
	if len(state)%2 != 1 {
		return fmt.Errorf("optim: Adam state must have odd length, got %d", len(state))
	}
	n := (len(state) - 1) / 2
	a.t = int(state[0])
	a.m = append([]float64(nil), state[1:1+n]...)
	a.v = append([]float64(nil), state[1+n:]...)
	return nil
}
