// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float64 arrays that flow through a
// dagnet graph.
//
// # Layouts
//
// Feed-forward activations are rank 2, [minibatch, features]. Time series
// are rank 3, [minibatch, features, time], and masks are [minibatch, time]
// with 1 for present steps and 0 for padding.
//
// # Basic Usage
//
//	x := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
//	y := tensor.Full(0.5, 2, 3)
//	z, err := x.Add(y)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	series := tensor.Zeros(8, 4, 100) // 8 sequences, 4 features, 100 steps
//	window, err := series.SliceTime(0, 20)
package tensor
