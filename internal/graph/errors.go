package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrNotInitialized = errors.New("graph: not initialized")
	ErrUnknownVertex  = errors.New("graph: unknown vertex")
	ErrNotRecurrent   = errors.New("graph: vertex has no recurrent state")
	ErrNoLabels       = errors.New("graph: no labels bound")
	ErrNotPretrain    = errors.New("graph: vertex does not support pretraining")
	ErrUnknownParam   = errors.New("graph: unknown parameter")
)

// CyclicGraphError reports that no topological order exists. Vertex is one
// of the vertices on a cycle.
type CyclicGraphError struct {
	Vertex string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("graph: cycle detected involving vertex %q", e.Vertex)
}

// DanglingEdgeError reports an input name that matches no vertex.
type DanglingEdgeError struct {
	Vertex string // vertex declaring the input
	Input  string // unresolved input name
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("graph: vertex %q has input %q which is not a vertex", e.Vertex, e.Input)
}

// UnboundInputError reports a network input with no tensor bound.
type UnboundInputError struct {
	Input string
	Index int
}

func (e *UnboundInputError) Error() string {
	return fmt.Sprintf("graph: network input %d (%q) is not bound", e.Index, e.Input)
}

// ParameterSizeMismatchError reports a parameter vector of the wrong length.
type ParameterSizeMismatchError struct {
	Expected int
	Got      int
}

func (e *ParameterSizeMismatchError) Error() string {
	return fmt.Sprintf("graph: parameter vector has length %d, graph needs %d", e.Got, e.Expected)
}

// InstantiationError reports a vertex the factory could not build.
type InstantiationError struct {
	Vertex string
	Err    error
}

func (e *InstantiationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("graph: vertex %q: factory returned no layer", e.Vertex)
	}
	return fmt.Sprintf("graph: vertex %q: %v", e.Vertex, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// MissingExternalGradientError reports a network output without a loss
// function for which the caller supplied no gradient.
type MissingExternalGradientError struct {
	Output string
	Index  int
}

func (e *MissingExternalGradientError) Error() string {
	return fmt.Sprintf("graph: output %d (%q) has no loss and no external gradient was given", e.Index, e.Output)
}
