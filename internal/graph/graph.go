// Package graph executes a directed acyclic graph of layers: forward
// inference, backpropagation into one flat gradient vector, truncated
// backpropagation through time, and mask propagation.
//
// A Graph is built from a config.GraphConfig in two steps. New resolves the
// topology (vertex indices, edges and the cached topological order) and
// Init assembles the flat parameter buffer and instantiates the layers, each
// over its own view of that buffer. A Graph is not safe for concurrent use.
package graph

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/optim"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/workspace"
)

// Factory builds the layer of a vertex from its configuration.
//
// NumParams must agree with the NumParams of the layer Instantiate returns.
// Instantiate receives the vertex's view of the flat parameter buffer; when
// rng is non-nil the layer draws its initial parameters into the view,
// otherwise the view already holds them.
type Factory interface {
	NumParams(vc config.VertexConfig) (int, error)
	Instantiate(vc config.VertexConfig, view params.View, rng *rand.Rand) (layer.Layer, error)
}

// Options tune a Graph.
type Options struct {
	// Logger receives engine logs. Defaults to slog.Default().
	Logger *slog.Logger

	// PreserveTBPTTState keeps the previous recurrent state after a truncated
	// backward pass instead of clearing it. Intended for tests.
	PreserveTBPTTState bool
}

// Graph is an initialized computation graph.
type Graph struct {
	conf    *config.GraphConfig
	factory Factory
	opts    Options
	log     *slog.Logger

	vertices []*Vertex
	byName   map[string]*Vertex
	order    []int
	inputs   []*Vertex // network inputs in declared order
	outputs  []*Vertex // network outputs in declared order

	initDone bool
	layout   *params.Layout
	flat     *params.Buffer
	grad     *params.Buffer
	gradient *Gradient

	session *workspace.Session
	solver  *optim.Solver

	inputArrays []*tensor.Tensor
	labels      []*tensor.Tensor

	score     float64
	iteration int
	epoch     int
	listeners []Listener
}

// New resolves the topology of conf. The configuration is copied, defaulted
// and validated; call Init before using the graph.
func New(conf *config.GraphConfig, factory Factory, opts Options) (*Graph, error) {
	if conf == nil {
		return nil, errors.New("graph: nil configuration")
	}
	if factory == nil {
		return nil, errors.New("graph: nil vertex factory")
	}
	conf = conf.Clone()
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	mode, err := workspace.ParseMode(conf.WorkspaceMode)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	names := conf.Names()
	declared := conf.InputsByName()
	order, err := ComputeOrder(names, declared)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &Graph{
		conf:     conf,
		factory:  factory,
		opts:     opts,
		log:      log,
		vertices: make([]*Vertex, len(names)),
		byName:   make(map[string]*Vertex, len(names)),
		order:    order,
		session:  workspace.NewSession(mode),
	}

	for i, name := range names {
		v := &Vertex{name: name, index: i, inputIndex: -1, outputIndex: -1}
		if i < len(conf.Inputs) {
			v.isInput = true
			v.inputIndex = i
			g.inputs = append(g.inputs, v)
		}
		g.vertices[i] = v
		g.byName[name] = v
	}
	for i, name := range names {
		v := g.vertices[i]
		for slot, in := range declared[name] {
			src := g.byName[in]
			v.inputs = append(v.inputs, Edge{Vertex: src.index, Slot: 0})
			src.outputs = append(src.outputs, Edge{Vertex: i, Slot: slot})
		}
	}
	for i, name := range conf.Outputs {
		v := g.byName[name]
		v.isOutput = true
		v.outputIndex = i
		g.outputs = append(g.outputs, v)
	}

	g.log.Debug("graph topology resolved",
		"vertices", len(names), "inputs", len(conf.Inputs), "outputs", len(conf.Outputs),
		"workspace", mode.String())
	return g, nil
}

// vertexConfig returns the configuration of a non-input vertex.
func (g *Graph) vertexConfig(v *Vertex) config.VertexConfig {
	return g.conf.Vertices[v.index-len(g.inputs)]
}

// Init assembles the flat parameter buffer and instantiates every layer.
//
// With a nil vector the parameters are drawn from a generator seeded with
// the configured seed. Otherwise the vector must have exactly NumParams
// values; clone selects between copying it and adopting it as the backing
// store. Calling Init on an initialized graph does nothing.
func (g *Graph) Init(initial []float64, clone bool) error {
	if g.initDone {
		return nil
	}

	counts := make([]int, len(g.vertices))
	for _, v := range g.vertices {
		if v.isInput {
			continue
		}
		n, err := g.factory.NumParams(g.vertexConfig(v))
		if err != nil {
			return errors.WithStack(&InstantiationError{Vertex: v.name, Err: err})
		}
		counts[v.index] = n
	}
	layout, err := params.NewLayout(g.order, counts)
	if err != nil {
		return errors.WithStack(err)
	}

	var (
		flat *params.Buffer
		rng  *rand.Rand
	)
	if initial != nil {
		if len(initial) != layout.Total() {
			return errors.WithStack(&ParameterSizeMismatchError{Expected: layout.Total(), Got: len(initial)})
		}
		flat = params.FromSlice(initial, clone)
	} else {
		flat = params.NewBuffer(layout.Total())
		rng = rand.New(rand.NewSource(g.conf.Seed))
	}

	// Instantiate in topological order so random draws follow parameter order.
	for _, idx := range g.order {
		v := g.vertices[idx]
		v.params = layout.Range(idx)
		if v.isInput {
			continue
		}
		l, err := g.factory.Instantiate(g.vertexConfig(v), flat.View(v.params), rng)
		if err != nil {
			return errors.WithStack(&InstantiationError{Vertex: v.name, Err: err})
		}
		if l == nil {
			return errors.WithStack(&InstantiationError{Vertex: v.name})
		}
		if l.NumParams() != v.params.Length {
			return errors.WithStack(&InstantiationError{
				Vertex: v.name,
				Err:    fmt.Errorf("layer has %d parameters, factory declared %d", l.NumParams(), v.params.Length),
			})
		}
		v.layer = l
		v.caps = layer.CapabilitiesOf(l)
	}

	updater, err := optim.New(g.conf.Updater)
	if err != nil {
		return errors.WithStack(err)
	}
	g.layout = layout
	g.flat = flat
	g.solver = optim.NewSolver(updater)
	g.initDone = true

	g.log.Debug("graph initialized", "params", layout.Total(), "seeded", rng != nil)
	return nil
}

// InitGradients builds the flat gradient buffer if it does not exist yet.
func (g *Graph) InitGradients() error {
	if err := g.requireInit(); err != nil {
		return err
	}
	if g.grad == nil {
		g.grad = params.NewBuffer(g.layout.Total())
	}
	return nil
}

func (g *Graph) requireInit() error {
	if !g.initDone {
		return errors.WithStack(ErrNotInitialized)
	}
	return nil
}

// Config returns a copy of the defaulted configuration.
func (g *Graph) Config() *config.GraphConfig { return g.conf.Clone() }

// Vertices returns the vertices in index order.
func (g *Graph) Vertices() []*Vertex { return append([]*Vertex(nil), g.vertices...) }

// Vertex returns the named vertex.
func (g *Graph) Vertex(name string) (*Vertex, error) {
	v, ok := g.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownVertex, "%q", name)
	}
	return v, nil
}

// TopologicalOrder returns a copy of the cached execution order.
func (g *Graph) TopologicalOrder() []int { return append([]int(nil), g.order...) }

// InputNames returns the network input names in declared order.
func (g *Graph) InputNames() []string { return append([]string(nil), g.conf.Inputs...) }

// OutputNames returns the network output names in declared order.
func (g *Graph) OutputNames() []string { return append([]string(nil), g.conf.Outputs...) }

// NumParams returns the length of the flat parameter vector.
func (g *Graph) NumParams() int {
	if g.layout == nil {
		return 0
	}
	return g.layout.Total()
}

// Params returns the live flat parameter vector (nil before Init).
func (g *Graph) Params() []float64 {
	if g.flat == nil {
		return nil
	}
	return g.flat.Data()
}

// SetParams copies p into the flat parameter vector.
func (g *Graph) SetParams(p []float64) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	var mismatch *params.SizeMismatchError
	if err := g.flat.Assign(p); errors.As(err, &mismatch) {
		return errors.WithStack(&ParameterSizeMismatchError{Expected: mismatch.Expected, Got: mismatch.Got})
	} else if err != nil {
		return err
	}
	return nil
}

// Gradients returns the flat gradient of the last backward pass, nil if the
// gradient buffer has not been built.
func (g *Graph) Gradients() []float64 {
	if g.grad == nil {
		return nil
	}
	return g.grad.Data()
}

// Gradient returns the named gradient of the last backward pass.
func (g *Graph) Gradient() *Gradient { return g.gradient }

// Score returns the loss of the last backward pass or Score call.
func (g *Graph) Score() float64 { return g.score }

// Solver returns the solver used by Fit.
func (g *Graph) Solver() *optim.Solver { return g.solver }

// LearningRate returns the learning rate of the solver.
func (g *Graph) LearningRate() float64 {
	if g.solver == nil {
		return g.conf.Updater.LearningRate
	}
	return g.solver.LearningRate()
}

// SetLearningRate changes the learning rate without resetting updater state.
func (g *Graph) SetLearningRate(lr float64) {
	g.conf.Updater.LearningRate = lr
	if g.solver != nil {
		g.solver.SetLearningRate(lr)
	}
}

// UpdaterState returns the flat updater state (empty for stateless updaters).
func (g *Graph) UpdaterState() []float64 {
	if g.solver == nil {
		return nil
	}
	if s, ok := g.solver.Updater().(optim.Stateful); ok {
		return s.State()
	}
	return nil
}

// SetUpdaterState restores a vector produced by UpdaterState.
func (g *Graph) SetUpdaterState(state []float64) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	s, ok := g.solver.Updater().(optim.Stateful)
	if !ok {
		if len(state) == 0 {
			return nil
		}
		return errors.Errorf("graph: updater %q has no state", g.conf.Updater.Type)
	}
	return s.SetState(state)
}

// Iteration returns the number of solver steps taken.
func (g *Graph) Iteration() int { return g.iteration }

// Epoch returns the number of completed FitIterator epochs.
func (g *Graph) Epoch() int { return g.epoch }

// SetCounters restores iteration and epoch counters.
func (g *Graph) SetCounters(iteration, epoch int) {
	g.iteration, g.epoch = iteration, epoch
}

// Workspace returns the arenas used for transient tensors.
func (g *Graph) Workspace() *workspace.Session { return g.session }

// SetInputs binds the network inputs used by ComputeGradientAndScore and
// BackpropGradient.
func (g *Graph) SetInputs(inputs ...*tensor.Tensor) {
	g.inputArrays = inputs
}

// SetLabels binds the labels of the network outputs, in declared order.
func (g *Graph) SetLabels(labels ...*tensor.Tensor) {
	g.labels = labels
}

func (g *Graph) labelFor(v *Vertex) *tensor.Tensor {
	if v.outputIndex < 0 || v.outputIndex >= len(g.labels) {
		return nil
	}
	return g.labels[v.outputIndex]
}

// clearVertices drops every vertex's transient state.
func (g *Graph) clearVertices() {
	for _, v := range g.vertices {
		v.clear()
	}
}

// Clear drops transient vertex state and the bound inputs and labels.
func (g *Graph) Clear() {
	g.clearVertices()
	g.inputArrays = nil
	g.labels = nil
}

// Clone returns an independent graph with the same configuration,
// parameters, updater state and counters.
func (g *Graph) Clone() (*Graph, error) {
	if err := g.requireInit(); err != nil {
		return nil, err
	}
	c, err := New(g.conf, g.factory, g.opts)
	if err != nil {
		return nil, err
	}
	if err := c.Init(g.flat.Data(), true); err != nil {
		return nil, err
	}
	c.SetLearningRate(g.LearningRate())
	if err := c.SetUpdaterState(g.UpdaterState()); err != nil {
		return nil, err
	}
	c.iteration, c.epoch = g.iteration, g.epoch
	c.listeners = append([]Listener(nil), g.listeners...)
	return c, nil
}
