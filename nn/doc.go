// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the reference layers executed by a dagnet graph.
//
// Layers are not constructed directly: the graph assembler slices one flat
// parameter vector into per-layer views and asks a Factory to build each
// vertex from its configuration, keyed by the vertex type:
//
//	conf, err := graph.NewBuilder().
//	    AddInputs("in").
//	    AddVertex("rnn", graph.SimpleRNN(10, 32, "tanh"), "in").
//	    AddVertex("out", graph.Output(32, 10, "softmax", nn.LossMCXENT), "rnn").
//	    SetOutputs("out").
//	    Build()
//	g, err := graph.New(conf, nn.NewFactory(), graph.Options{})
//
// # Layers
//
//   - Dense: y = f(xW + b)
//   - Output: dense layer plus loss (mse, mcxent), per time step for series
//   - SimpleRNN: h_t = f(W x_t + R h_(t-1) + b)
//   - ElementWiseMultiplication: y = f(x*w + b) per feature
//   - AutoEncoder: pretrainable encoder with tied decoder weights
//   - Frozen: wrapper that blocks parameter updates
//
// # Structural Vertices
//
// Merge concatenates features, ElementWise combines same-shape inputs,
// Subset selects a feature range and LastTimeStep reduces a masked series to
// its last present step.
package nn
