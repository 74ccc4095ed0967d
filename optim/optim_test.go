// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/optim"
)

func TestUpdaters(t *testing.T) {
	tests := []struct {
		name string
		u    optim.Updater
	}{
		{"sgd", optim.NewSGD(optim.SGDConfig{LR: 0.1})},
		{"sgd momentum", optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})},
		{"adam", optim.NewAdam(optim.AdamConfig{LR: 0.1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := []float64{1, -1}
			tt.u.Update(params, []float64{1, -1})
			assert.Less(t, params[0], 1.0)
			assert.Greater(t, params[1], -1.0)
		})
	}
}

func TestNew(t *testing.T) {
	u, err := optim.New(config.UpdaterConfig{Type: config.UpdaterAdam, LearningRate: 0.01})
	require.NoError(t, err)
	_, ok := u.(optim.Stateful)
	assert.True(t, ok)
	assert.InDelta(t, 0.01, optim.NewSolver(u).LearningRate(), 1e-12)
}
