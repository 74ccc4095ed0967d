// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/eval"
	"github.com/born-ml/dagnet/internal/graph"
	"github.com/born-ml/dagnet/internal/nn"
	"github.com/born-ml/dagnet/internal/serialization"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Engine

// Graph is an initialized computation graph.
type Graph = graph.Graph

// Options tune graph behavior.
type Options = graph.Options

// Factory instantiates layers for vertex configurations.
type Factory = graph.Factory

// Vertex is one node of an assembled graph.
type Vertex = graph.Vertex

// Gradient holds the flat gradient vector and its named views.
type Gradient = graph.Gradient

// ForwardOptions select the outputs and mode of a forward pass.
type ForwardOptions = graph.ForwardOptions

// New assembles a graph from conf using factory. Call Init before use.
func New(conf *Config, factory Factory, opts Options) (*Graph, error) {
	return graph.New(conf, factory, opts)
}

// NewInitialized assembles a graph with the reference vertex factory and
// initializes fresh parameters from the configured seed.
func NewInitialized(conf *Config, opts Options) (*Graph, error) {
	g, err := graph.New(conf, nn.NewFactory(), opts)
	if err != nil {
		return nil, err
	}
	if err := g.Init(nil, false); err != nil {
		return nil, err
	}
	return g, nil
}

// DefaultFactory returns the reference vertex factory.
func DefaultFactory() Factory { return nn.NewFactory() }

// ComputeOrder returns the topological order of names given each name's inputs.
func ComputeOrder(names []string, inputs map[string][]string) ([]int, error) {
	return graph.ComputeOrder(names, inputs)
}

// Training

// StepContext describes one optimization step to listeners.
type StepContext = graph.StepContext

// Listener is notified after every optimization step.
type Listener = graph.Listener

// EpochListener is additionally notified after every epoch.
type EpochListener = graph.EpochListener

// ScoreListener logs the score every Frequency iterations.
type ScoreListener = graph.ScoreListener

// Errors

var (
	ErrNotInitialized = graph.ErrNotInitialized
	ErrUnknownVertex  = graph.ErrUnknownVertex
	ErrNotRecurrent   = graph.ErrNotRecurrent
	ErrNoLabels       = graph.ErrNoLabels
	ErrNotPretrain    = graph.ErrNotPretrain
	ErrUnknownParam   = graph.ErrUnknownParam
)

type (
	CyclicGraphError             = graph.CyclicGraphError
	DanglingEdgeError            = graph.DanglingEdgeError
	UnboundInputError            = graph.UnboundInputError
	ParameterSizeMismatchError   = graph.ParameterSizeMismatchError
	InstantiationError           = graph.InstantiationError
	MissingExternalGradientError = graph.MissingExternalGradientError
)

// Configuration

// Config is the declarative description of a graph.
type Config = config.GraphConfig

// VertexConfig declares one non-input vertex.
type VertexConfig = config.VertexConfig

// UpdaterConfig describes the solver.
type UpdaterConfig = config.UpdaterConfig

// Builder assembles a Config fluently.
type Builder = config.Builder

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return config.NewBuilder() }

// LoadConfig reads a YAML or JSON configuration file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// ParseYAML decodes a YAML configuration.
func ParseYAML(b []byte) (*Config, error) { return config.ParseYAML(b) }

// ParseJSON decodes a JSON configuration.
func ParseJSON(b []byte) (*Config, error) { return config.ParseJSON(b) }

const (
	BackpropStandard  = config.BackpropStandard
	BackpropTruncated = config.BackpropTruncated
	UpdaterSGD        = config.UpdaterSGD
	UpdaterAdam       = config.UpdaterAdam
	WorkspaceEnabled  = config.WorkspaceEnabled
	WorkspaceNone     = config.WorkspaceNone
	LossMSE           = nn.LossMSE
	LossMCXENT        = nn.LossMCXENT
)

// Dense declares a fully connected layer.
func Dense(nIn, nOut int, activation string) VertexConfig {
	return config.Dense(nIn, nOut, activation)
}

// Output declares a dense layer with a loss function.
func Output(nIn, nOut int, activation, loss string) VertexConfig {
	return config.Output(nIn, nOut, activation, loss)
}

// SimpleRNN declares a fully connected recurrent layer.
func SimpleRNN(nIn, nOut int, activation string) VertexConfig {
	return config.SimpleRNN(nIn, nOut, activation)
}

// ElementWiseMult declares y = f(x*w + b) with per-feature w and b.
func ElementWiseMult(n int, activation string) VertexConfig {
	return config.ElementWiseMult(n, activation)
}

// AutoEncoder declares a pretrainable encoder layer.
func AutoEncoder(nIn, nOut int, activation string) VertexConfig {
	return config.AutoEncoder(nIn, nOut, activation)
}

// Merge concatenates the features of all inputs.
func Merge() VertexConfig { return config.Merge() }

// ElementWise combines same-shape inputs with op (add, subtract, product, average).
func ElementWise(op string) VertexConfig { return config.ElementWise(op) }

// Subset selects features [from, to].
func Subset(from, to int) VertexConfig { return config.Subset(from, to) }

// LastTimeStep reduces a sequence to its last unmasked step.
func LastTimeStep() VertexConfig { return config.LastTimeStep() }

// Frozen marks v as not trainable.
func Frozen(v VertexConfig) VertexConfig { return config.Frozen(v) }

// Data

// Tensor is a dense float64 array.
type Tensor = tensor.Tensor

// MultiDataSet is one minibatch of features, labels and optional masks.
type MultiDataSet = data.MultiDataSet

// Iterator yields minibatches.
type Iterator = data.Iterator

// NewMultiDataSet returns a minibatch without masks.
func NewMultiDataSet(features, labels []*Tensor) *MultiDataSet {
	return data.NewMultiDataSet(features, labels)
}

// NewSliceIterator iterates over in-memory minibatches.
func NewSliceIterator(batches ...*MultiDataSet) *data.SliceIterator {
	return data.NewSliceIterator(batches...)
}

// Metric accumulates evaluation statistics.
type Metric = eval.Metric

// NewRegression returns a per-column regression metric.
func NewRegression() *eval.Regression { return eval.NewRegression() }

// Snapshots

// Save writes a .dagn snapshot of g, optionally with the updater state.
func Save(path string, g *Graph, saveUpdater bool) error {
	return serialization.Save(path, g, saveUpdater)
}

// Load restores a snapshot with the reference vertex factory.
func Load(path string, loadUpdater bool) (*Graph, error) {
	return serialization.Load(path, nn.NewFactory(), loadUpdater)
}

// ExportSafeTensors writes the parameters of g in SafeTensors format.
func ExportSafeTensors(path string, g *Graph) error {
	return serialization.ExportSafeTensors(path, g)
}
