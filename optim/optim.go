// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/optim"
)

// Model is anything that can compute a score and a flat gradient.
type Model = optim.Model

// Updater applies one step to a flat parameter vector.
type Updater = optim.Updater

// Stateful updaters expose their state as one flat vector.
type Stateful = optim.Stateful

// Solver drives an Updater over a Model.
type Solver = optim.Solver

// NewSolver wraps u.
func NewSolver(u Updater) *Solver { return optim.NewSolver(u) }

// New builds the updater described by cfg.
func New(cfg config.UpdaterConfig) (Updater, error) { return optim.New(cfg) }

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD updater with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD updater.
//
// Example:
//
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	sgd.Update(params, grads)
func NewSGD(config SGDConfig) *SGD { return optim.NewSGD(config) }

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam updater.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam updater with bias correction.
//
// Example:
//
//	adam := optim.NewAdam(optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float64{0.9, 0.999},
//	})
func NewAdam(config AdamConfig) *Adam { return optim.NewAdam(config) }
