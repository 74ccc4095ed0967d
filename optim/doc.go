// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the updaters that train a dagnet graph.
//
// # Overview
//
// Updaters work on one flat parameter vector and the matching flat
// gradient vector:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Solver: runs one gradient computation and one update per step
//
// Graphs build their updater from the updater section of the graph
// configuration, so most callers never touch this package directly.
//
// # Basic Usage
//
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	solver := optim.NewSolver(sgd)
//	for range 100 {
//	    if err := solver.OptimizeOneStep(model); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Updater State
//
// Updaters implementing Stateful expose their internal vectors (the SGD
// velocity, the Adam moments and step count) as one flat slice so that
// snapshots can resume training exactly.
package optim
