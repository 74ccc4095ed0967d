package config

// Builder assembles a GraphConfig fluently. Errors surface from Build.
//
// Example:
//
//	conf, err := config.NewBuilder().
//	    Seed(42).
//	    AddInputs("in").
//	    AddVertex("hidden", config.Dense(4, 8, "tanh"), "in").
//	    AddVertex("out", config.Output(8, 2, "softmax", "mcxent"), "hidden").
//	    SetOutputs("out").
//	    Build()
type Builder struct {
	conf GraphConfig
}

// NewBuilder starts an empty configuration.
func NewBuilder() *Builder {
	return &Builder{}
}

// Seed sets the parameter initialization seed.
func (b *Builder) Seed(seed int64) *Builder {
	b.conf.Seed = seed
	return b
}

// AddInputs declares network inputs in order.
func (b *Builder) AddInputs(names ...string) *Builder {
	b.conf.Inputs = append(b.conf.Inputs, names...)
	return b
}

// AddVertex declares a vertex fed by inputs, in that slot order.
func (b *Builder) AddVertex(name string, v VertexConfig, inputs ...string) *Builder {
	v.Name = name
	v.Inputs = append([]string(nil), inputs...)
	b.conf.Vertices = append(b.conf.Vertices, v)
	return b
}

// SetOutputs declares the network outputs in order.
func (b *Builder) SetOutputs(names ...string) *Builder {
	b.conf.Outputs = append([]string(nil), names...)
	return b
}

// TruncatedBPTT switches to truncated backpropagation with the given window.
func (b *Builder) TruncatedBPTT(length int) *Builder {
	b.conf.BackpropType = BackpropTruncated
	b.conf.TBPTTLength = length
	return b
}

// Workspace sets the workspace mode.
func (b *Builder) Workspace(mode string) *Builder {
	b.conf.WorkspaceMode = mode
	return b
}

// Updater sets the solver configuration.
func (b *Builder) Updater(u UpdaterConfig) *Builder {
	b.conf.Updater = u
	return b
}

// Pretrain enables layer-wise pretraining during fit.
func (b *Builder) Pretrain(on bool) *Builder {
	b.conf.Pretrain = on
	return b
}

// Backprop toggles supervised backpropagation during fit.
func (b *Builder) Backprop(on bool) *Builder {
	b.conf.Backprop = &on
	return b
}

// Build applies defaults and validates.
func (b *Builder) Build() (*GraphConfig, error) {
	c := b.conf.Clone()
	return finish(c)
}

// Dense declares a fully connected layer.
func Dense(nIn, nOut int, activation string) VertexConfig {
	return VertexConfig{Type: TypeDense, NIn: nIn, NOut: nOut, Activation: activation}
}

// Output declares a dense layer with a loss function.
func Output(nIn, nOut int, activation, loss string) VertexConfig {
	return VertexConfig{Type: TypeOutput, NIn: nIn, NOut: nOut, Activation: activation, Loss: loss}
}

// SimpleRNN declares a fully connected recurrent layer.
func SimpleRNN(nIn, nOut int, activation string) VertexConfig {
	return VertexConfig{Type: TypeSimpleRNN, NIn: nIn, NOut: nOut, Activation: activation}
}

// ElementWiseMult declares y = f(x*w + b) with per-feature w and b.
func ElementWiseMult(n int, activation string) VertexConfig {
	return VertexConfig{Type: TypeElementWiseMult, NIn: n, NOut: n, Activation: activation}
}

// AutoEncoder declares a pretrainable encoder layer.
func AutoEncoder(nIn, nOut int, activation string) VertexConfig {
	return VertexConfig{Type: TypeAutoEncoder, NIn: nIn, NOut: nOut, Activation: activation}
}

// Merge declares a feature concatenation of all inputs.
func Merge() VertexConfig {
	return VertexConfig{Type: TypeMerge}
}

// ElementWise declares an element-wise combination (add, subtract, product, average).
func ElementWise(op string) VertexConfig {
	return VertexConfig{Type: TypeElementWise, Op: op}
}

// Subset declares the feature range [from, to] (inclusive) of a single input.
func Subset(from, to int) VertexConfig {
	return VertexConfig{Type: TypeSubset, From: from, To: to}
}

// LastTimeStep declares a rank-3 to rank-2 reduction picking the last unmasked step.
func LastTimeStep() VertexConfig {
	return VertexConfig{Type: TypeLastTimeStep}
}

// Frozen marks v as non-trainable.
func Frozen(v VertexConfig) VertexConfig {
	v.Frozen = true
	return v
}
