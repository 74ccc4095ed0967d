// Package config holds the declarative description of a computation graph.
//
// A GraphConfig names the network inputs, an ordered list of vertices with
// their input names, and the network outputs. Declaration order matters: it
// breaks ties in the topological order and therefore fixes parameter
// offsets. Configurations round-trip through YAML and JSON.
package config

import (
	"github.com/pkg/errors"
)

// BackpropType selects full-sequence or truncated backpropagation.
type BackpropType string

const (
	BackpropStandard  BackpropType = "standard"
	BackpropTruncated BackpropType = "truncated_bptt"
)

// Vertex types understood by the reference vertex factory.
const (
	TypeDense           = "dense"
	TypeOutput          = "output"
	TypeSimpleRNN       = "simple_rnn"
	TypeElementWiseMult = "elementwise_mult"
	TypeAutoEncoder     = "autoencoder"
	TypeMerge           = "merge"
	TypeElementWise     = "elementwise"
	TypeSubset          = "subset"
	TypeLastTimeStep    = "last_time_step"
)

// Updater types.
const (
	UpdaterSGD  = "sgd"
	UpdaterAdam = "adam"
)

// Workspace modes.
const (
	WorkspaceEnabled = "enabled"
	WorkspaceNone    = "none"
)

const (
	DefaultTBPTTLength = 20
	defaultSGDRate     = 0.1
	defaultAdamRate    = 1e-3
)

// ErrInvalid is the cause of every validation failure.
var ErrInvalid = errors.New("invalid graph configuration")

// UpdaterConfig describes the solver applied to the flat parameter vector.
type UpdaterConfig struct {
	Type         string  `json:"type" yaml:"type"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Momentum     float64 `json:"momentum,omitempty" yaml:"momentum,omitempty"`
	Beta1        float64 `json:"beta1,omitempty" yaml:"beta1,omitempty"`
	Beta2        float64 `json:"beta2,omitempty" yaml:"beta2,omitempty"`
	Epsilon      float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
}

// VertexConfig declares one non-input vertex.
type VertexConfig struct {
	Name       string   `json:"name" yaml:"name"`
	Type       string   `json:"type" yaml:"type"`
	Inputs     []string `json:"inputs" yaml:"inputs"`
	NIn        int      `json:"n_in,omitempty" yaml:"n_in,omitempty"`
	NOut       int      `json:"n_out,omitempty" yaml:"n_out,omitempty"`
	Activation string   `json:"activation,omitempty" yaml:"activation,omitempty"`
	Loss       string   `json:"loss,omitempty" yaml:"loss,omitempty"`
	Op         string   `json:"op,omitempty" yaml:"op,omitempty"`
	From       int      `json:"from,omitempty" yaml:"from,omitempty"`
	To         int      `json:"to,omitempty" yaml:"to,omitempty"`
	Frozen     bool     `json:"frozen,omitempty" yaml:"frozen,omitempty"`
}

// GraphConfig is the full declarative graph.
type GraphConfig struct {
	Inputs        []string       `json:"inputs" yaml:"inputs"`
	Outputs       []string       `json:"outputs" yaml:"outputs"`
	Vertices      []VertexConfig `json:"vertices" yaml:"vertices"`
	Seed          int64          `json:"seed" yaml:"seed"`
	BackpropType  BackpropType   `json:"backprop_type,omitempty" yaml:"backprop_type,omitempty"`
	TBPTTLength   int            `json:"tbptt_length,omitempty" yaml:"tbptt_length,omitempty"`
	WorkspaceMode string         `json:"workspace_mode,omitempty" yaml:"workspace_mode,omitempty"`
	Pretrain      bool           `json:"pretrain,omitempty" yaml:"pretrain,omitempty"`
	Backprop      *bool          `json:"backprop,omitempty" yaml:"backprop,omitempty"`
	Updater       UpdaterConfig  `json:"updater" yaml:"updater"`
}

// BackpropEnabled reports whether fit runs supervised backpropagation (default true).
func (c *GraphConfig) BackpropEnabled() bool {
	return c.Backprop == nil || *c.Backprop
}

// ApplyDefaults fills unset optional fields.
func (c *GraphConfig) ApplyDefaults() {
	if c.BackpropType == "" {
		c.BackpropType = BackpropStandard
	}
	if c.TBPTTLength == 0 {
		c.TBPTTLength = DefaultTBPTTLength
	}
	if c.WorkspaceMode == "" {
		c.WorkspaceMode = WorkspaceEnabled
	}
	u := &c.Updater
	if u.Type == "" {
		u.Type = UpdaterSGD
	}
	if u.LearningRate == 0 {
		if u.Type == UpdaterAdam {
			u.LearningRate = defaultAdamRate
		} else {
			u.LearningRate = defaultSGDRate
		}
	}
	if u.Type == UpdaterAdam {
		if u.Beta1 == 0 {
			u.Beta1 = 0.9
		}
		if u.Beta2 == 0 {
			u.Beta2 = 0.999
		}
		if u.Epsilon == 0 {
			u.Epsilon = 1e-8
		}
	}
}

// Validate checks the structure of the configuration. Input names that do
// not resolve to a vertex are left for graph assembly to report.
func (c *GraphConfig) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.Wrap(ErrInvalid, "no network inputs declared")
	}
	if len(c.Outputs) == 0 {
		return errors.Wrap(ErrInvalid, "no network outputs declared")
	}

	seen := make(map[string]bool, len(c.Inputs)+len(c.Vertices))
	for _, in := range c.Inputs {
		if in == "" {
			return errors.Wrap(ErrInvalid, "empty input name")
		}
		if seen[in] {
			return errors.Wrapf(ErrInvalid, "duplicate name %q", in)
		}
		seen[in] = true
	}
	for _, v := range c.Vertices {
		if v.Name == "" {
			return errors.Wrap(ErrInvalid, "vertex with empty name")
		}
		if seen[v.Name] {
			return errors.Wrapf(ErrInvalid, "duplicate name %q", v.Name)
		}
		seen[v.Name] = true
		if v.Type == "" {
			return errors.Wrapf(ErrInvalid, "vertex %q has no type", v.Name)
		}
		if len(v.Inputs) == 0 {
			return errors.Wrapf(ErrInvalid, "vertex %q has no inputs", v.Name)
		}
	}
	for _, out := range c.Outputs {
		if !seen[out] {
			return errors.Wrapf(ErrInvalid, "output %q is not a declared vertex", out)
		}
	}

	switch c.BackpropType {
	case "", BackpropStandard:
	case BackpropTruncated:
		if c.TBPTTLength <= 0 {
			return errors.Wrapf(ErrInvalid, "tbptt_length must be positive, got %d", c.TBPTTLength)
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown backprop_type %q", c.BackpropType)
	}

	switch c.WorkspaceMode {
	case "", WorkspaceEnabled, WorkspaceNone:
	default:
		return errors.Wrapf(ErrInvalid, "unknown workspace_mode %q", c.WorkspaceMode)
	}

	switch c.Updater.Type {
	case "", UpdaterSGD, UpdaterAdam:
	default:
		return errors.Wrapf(ErrInvalid, "unknown updater %q", c.Updater.Type)
	}
	if c.Updater.LearningRate < 0 {
		return errors.Wrapf(ErrInvalid, "negative learning rate %g", c.Updater.LearningRate)
	}
	return nil
}

// Vertex returns the configuration of the named vertex.
func (c *GraphConfig) Vertex(name string) (VertexConfig, bool) {
	for _, v := range c.Vertices {
		if v.Name == name {
			return v, true
		}
	}
	return VertexConfig{}, false
}

// Names returns inputs followed by vertices in declaration order. This is the
// vertex index assignment used by the graph.
func (c *GraphConfig) Names() []string {
	names := make([]string, 0, len(c.Inputs)+len(c.Vertices))
	names = append(names, c.Inputs...)
	for _, v := range c.Vertices {
		names = append(names, v.Name)
	}
	return names
}

// InputsByName maps every vertex name to its declared input names.
func (c *GraphConfig) InputsByName() map[string][]string {
	m := make(map[string][]string, len(c.Vertices))
	for _, v := range c.Vertices {
		m[v.Name] = append([]string(nil), v.Inputs...)
	}
	return m
}

// Clone returns a deep copy.
func (c *GraphConfig) Clone() *GraphConfig {
	out := *c
	out.Inputs = append([]string(nil), c.Inputs...)
	out.Outputs = append([]string(nil), c.Outputs...)
	out.Vertices = make([]VertexConfig, len(c.Vertices))
	for i, v := range c.Vertices {
		v.Inputs = append([]string(nil), v.Inputs...)
		out.Vertices[i] = v
	}
	if c.Backprop != nil {
		b := *c.Backprop
		out.Backprop = &b
	}
	return &out
}
