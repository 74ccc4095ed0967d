package graph

import (
	"io"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/optim"
)

// Pretrain runs unsupervised pretraining for every pretrainable vertex in
// topological order, one pass over iter per vertex.
func (g *Graph) Pretrain(iter data.Iterator) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	first := true
	for _, idx := range g.order {
		v := g.vertices[idx]
		if v.caps.Pretrain == nil || v.caps.Frozen {
			continue
		}
		if !first {
			if !iter.ResetSupported() {
				return errors.New("graph: pretraining more than one vertex needs a resettable iterator")
			}
			if err := iter.Reset(); err != nil {
				return errors.Wrap(err, "graph: reset iterator")
			}
		}
		first = false
		if err := g.pretrainVertex(v, iter); err != nil {
			return err
		}
	}
	return nil
}

// PretrainLayer runs one unsupervised pass over iter for the named vertex.
// Only the vertex's ancestors are executed.
func (g *Graph) PretrainLayer(name string, iter data.Iterator) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	v, err := g.Vertex(name)
	if err != nil {
		return err
	}
	if v.caps.Pretrain == nil {
		return errors.Wrapf(ErrNotPretrain, "%q", name)
	}
	return g.pretrainVertex(v, iter)
}

// ancestorOrder returns the topological order restricted to the strict
// ancestors of v.
func (g *Graph) ancestorOrder(v *Vertex) []int {
	seen := make([]bool, len(g.vertices))
	stack := []int{v.index}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.vertices[cur].inputs {
			if !seen[e.Vertex] {
				seen[e.Vertex] = true
				stack = append(stack, e.Vertex)
			}
		}
	}
	order := make([]int, 0, len(g.order))
	for _, idx := range g.order {
		if seen[idx] {
			order = append(order, idx)
		}
	}
	return order
}

func (g *Graph) pretrainVertex(v *Vertex, iter data.Iterator) error {
	updater, err := optim.New(g.conf.Updater)
	if err != nil {
		return errors.WithStack(err)
	}
	updater.SetLearningRate(g.LearningRate())

	order := g.ancestorOrder(v)
	view := g.flat.Data()[v.params.Offset:v.params.End()]
	grad := make([]float64, v.params.Length)
	batches := 0
	score := 0.0
	for {
		ds, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		err = g.session.External.Do(func() error {
			defer g.clearVertices()
			if _, err := g.feedForward(order, ds.Features, ForwardOptions{Training: true}, recurrentReset); err != nil {
				return err
			}
			ins, err := v.inputTensors()
			if err != nil {
				return err
			}
			s, pg, err := v.caps.Pretrain.PretrainGradient(ins)
			if err != nil {
				return err
			}
			if pg.Len() != len(grad) {
				return errors.Errorf("graph: vertex %q returned %d pretrain gradient values for %d parameters",
					v.name, pg.Len(), len(grad))
			}
			off := 0
			for _, p := range pg {
				off += copy(grad[off:], p.Value.Data())
			}
			updater.Update(view, grad)
			score = s
			return nil
		})
		if err != nil {
			return err
		}
		batches++
	}
	g.log.Debug("vertex pretrained", "vertex", v.name, "batches", batches, "score", score)
	return nil
}
