// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph is the public API of the dagnet computation graph engine.
//
// # Overview
//
// A graph is a directed acyclic network of vertices. Each vertex consumes
// the activations of one or more upstream vertices (or network inputs) and
// produces one activation. The package provides:
//   - Declarative configuration with a fluent Builder, YAML and JSON
//   - Topological execution of forward and backward passes
//   - One flat parameter vector and one flat gradient vector per graph
//   - Truncated backpropagation through time for recurrent vertices
//   - Mask propagation for variable-length sequences
//   - Checksummed snapshots (.dagn) and SafeTensors export
//
// # Basic Usage
//
//	conf, err := graph.NewBuilder().
//	    AddInputs("in").
//	    AddVertex("hidden", graph.Dense(4, 8, "tanh"), "in").
//	    AddVertex("out", graph.Output(8, 3, "softmax", graph.LossMCXENT), "hidden").
//	    SetOutputs("out").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	g, err := graph.NewInitialized(conf, graph.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, ds := range batches {
//	    if err := g.Fit(ds); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Snapshots
//
//	if err := graph.Save("model.dagn", g, true); err != nil {
//	    log.Fatal(err)
//	}
//	restored, err := graph.Load("model.dagn", true)
package graph
