// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/graph"
	"github.com/born-ml/dagnet/tensor"
)

func xorData() *graph.MultiDataSet {
	x := tensor.FromSlice([]float64{0, 0, 0, 1, 1, 0, 1, 1}, 4, 2)
	y := tensor.FromSlice([]float64{1, 0, 0, 1, 0, 1, 1, 0}, 4, 2)
	return graph.NewMultiDataSet([]*graph.Tensor{x}, []*graph.Tensor{y})
}

func TestPublicAPI_TrainSaveLoad(t *testing.T) {
	conf, err := graph.NewBuilder().
		Seed(5).
		AddInputs("in").
		AddVertex("left", graph.Dense(2, 4, "tanh"), "in").
		AddVertex("right", graph.Dense(2, 4, "tanh"), "in").
		AddVertex("join", graph.Merge(), "left", "right").
		AddVertex("out", graph.Output(8, 2, "softmax", graph.LossMCXENT), "join").
		SetOutputs("out").
		Updater(graph.UpdaterConfig{Type: graph.UpdaterAdam, LearningRate: 0.05}).
		Build()
	require.NoError(t, err)

	g, err := graph.NewInitialized(conf, graph.Options{})
	require.NoError(t, err)

	ds := xorData()
	first, err := g.ScoreDataSet(ds, false)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Fit(ds))
	}
	last, err := g.ScoreDataSet(ds, false)
	require.NoError(t, err)
	assert.Less(t, last, first)

	path := filepath.Join(t.TempDir(), "xor.dagn")
	require.NoError(t, graph.Save(path, g, true))
	restored, err := graph.Load(path, true)
	require.NoError(t, err)

	want, err := g.OutputSingle(false, ds.Features...)
	require.NoError(t, err)
	got, err := restored.OutputSingle(false, ds.Features...)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestPublicAPI_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*graph.Config, error)
		check func(t *testing.T, err error)
	}{
		{
			name: "cycle",
			build: func() (*graph.Config, error) {
				return graph.NewBuilder().
					AddInputs("in").
					AddVertex("a", graph.ElementWise("add"), "in", "b").
					AddVertex("b", graph.ElementWise("add"), "a").
					SetOutputs("b").
					Build()
			},
			check: func(t *testing.T, err error) {
				var cyc *graph.CyclicGraphError
				assert.True(t, errors.As(err, &cyc))
			},
		},
		{
			name: "dangling edge",
			build: func() (*graph.Config, error) {
				return graph.NewBuilder().
					AddInputs("in").
					AddVertex("a", graph.Dense(2, 2, "identity"), "nowhere").
					SetOutputs("a").
					Build()
			},
			check: func(t *testing.T, err error) {
				var dangling *graph.DanglingEdgeError
				assert.True(t, errors.As(err, &dangling))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := tt.build()
			require.NoError(t, err)
			_, err = graph.NewInitialized(conf, graph.Options{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestComputeOrder(t *testing.T) {
	order, err := graph.ComputeOrder(
		[]string{"in", "b", "a", "out"},
		map[string][]string{"b": {"a"}, "a": {"in"}, "out": {"b", "a"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1, 3}, order)
}
