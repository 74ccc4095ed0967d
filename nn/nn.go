// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/dagnet/internal/nn"
)

// Factory builds layers and structural vertices from vertex configurations.
type Factory = nn.Factory

// NewFactory returns the reference vertex factory.
func NewFactory() *Factory { return nn.NewFactory() }

// Activation is an element-wise (or row-wise, for softmax) nonlinearity.
type Activation = nn.Activation

// ActivationByName resolves identity, tanh, sigmoid, relu or softmax.
func ActivationByName(name string) (Activation, error) { return nn.ActivationByName(name) }

// Loss functions accepted by output vertices.
const (
	LossMSE    = nn.LossMSE
	LossMCXENT = nn.LossMCXENT
)

// Element-wise vertex operations.
const (
	OpAdd      = nn.OpAdd
	OpSubtract = nn.OpSubtract
	OpProduct  = nn.OpProduct
	OpAverage  = nn.OpAverage
)

// StateKey names the hidden state of a SimpleRNN in RNN state maps.
const StateKey = nn.StateKey

// Layers

type (
	Dense                     = nn.Dense
	Output                    = nn.Output
	SimpleRNN                 = nn.SimpleRNN
	ElementWiseMultiplication = nn.ElementWiseMultiplication
	AutoEncoder               = nn.AutoEncoder
	Frozen                    = nn.Frozen
)

// Structural vertices

type (
	Merge        = nn.Merge
	ElementWise  = nn.ElementWise
	Subset       = nn.Subset
	LastTimeStep = nn.LastTimeStep
)
