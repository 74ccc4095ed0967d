package graph

import (
	"slices"

	"github.com/pkg/errors"
)

// ComputeOrder returns a topological order of names, given each vertex's
// declared inputs (vertices absent from inputs have none).
//
// The order is Kahn's algorithm with a FIFO queue seeded in index order.
// Successors are released in declaration order, so the result depends only
// on the configuration and ties never depend on map iteration.
func ComputeOrder(names []string, inputs map[string][]string) ([]int, error) {
	n := len(names)
	index := make(map[string]int, n)
	for i, name := range names {
		index[name] = i
	}

	inDegree := make([]int, n)
	successors := make([][]int, n)
	predecessors := make([][]int, n)
	for i, name := range names {
		for _, in := range inputs[name] {
			j, ok := index[in]
			if !ok {
				return nil, errors.WithStack(&DanglingEdgeError{Vertex: name, Input: in})
			}
			successors[j] = append(successors[j], i)
			predecessors[i] = append(predecessors[i], j)
			inDegree[i]++
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, s := range successors[v] {
			inDegree[s]--
			if inDegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if len(order) < n {
		return nil, errors.WithStack(&CyclicGraphError{Vertex: names[onCycle(inDegree, predecessors)]})
	}
	return order, nil
}

// onCycle returns a vertex on a cycle among the vertices Kahn's algorithm
// left with a positive in-degree. Each of them has a predecessor that was
// also left, so walking predecessors from the first one must revisit a
// vertex, and the first revisited vertex lies on a cycle.
func onCycle(inDegree []int, predecessors [][]int) int {
	v := slices.IndexFunc(inDegree, func(d int) bool { return d > 0 })
	seen := make(map[int]bool)
	for !seen[v] {
		seen[v] = true
		for _, p := range predecessors[v] {
			if inDegree[p] > 0 {
				v = p
				break
			}
		}
	}
	return v
}
