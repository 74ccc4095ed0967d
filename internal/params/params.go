// Package params implements the flattened parameter and gradient storage
// shared by every vertex of a graph.
//
// A graph owns exactly one Buffer for parameters and one for gradients.
// Vertices never hold independent slices: they hold a View, which is the
// owning Buffer plus a Range, and resolve the underlying slice on demand.
// Replacing the backing array (Buffer.Assign) is therefore visible to every
// view without rewiring.
package params

import "fmt"

// Range is a contiguous [Offset, Offset+Length) region of a flat buffer.
type Range struct {
	Offset int
	Length int
}

// End returns the exclusive end index.
func (r Range) End() int { return r.Offset + r.Length }

// Overlaps reports whether two non-empty ranges share an index.
func (r Range) Overlaps(o Range) bool {
	if r.Length == 0 || o.Length == 0 {
		return false
	}
	return r.Offset < o.End() && o.Offset < r.End()
}

// Layout assigns each vertex a Range in topological order.
type Layout struct {
	ranges []Range // indexed by vertex index
	order  []int
	total  int
}

// NewLayout builds a layout from a topological order and per-vertex parameter
// counts (indexed by vertex index). Offsets are cumulative in order.
func NewLayout(order []int, counts []int) (*Layout, error) {
	if len(order) != len(counts) {
		return nil, fmt.Errorf("params: order has %d vertices but %d counts given", len(order), len(counts))
	}
	l := &Layout{ranges: make([]Range, len(counts)), order: append([]int(nil), order...)}
	seen := make([]bool, len(counts))
	for _, v := range order {
		if v < 0 || v >= len(counts) || seen[v] {
			return nil, fmt.Errorf("params: order is not a permutation (vertex %d)", v)
		}
		seen[v] = true
		if counts[v] < 0 {
			return nil, fmt.Errorf("params: vertex %d has negative parameter count %d", v, counts[v])
		}
		l.ranges[v] = Range{Offset: l.total, Length: counts[v]}
		l.total += counts[v]
	}
	return l, nil
}

// Range returns the range of vertex v.
func (l *Layout) Range(v int) Range { return l.ranges[v] }

// Total returns the summed parameter count.
func (l *Layout) Total() int { return l.total }

// Order returns the topological order the layout was built from.
func (l *Layout) Order() []int { return append([]int(nil), l.order...) }

// Validate checks that ranges tile [0, Total) without gaps or overlap.
func (l *Layout) Validate() error {
	next := 0
	for _, v := range l.order {
		r := l.ranges[v]
		if r.Offset != next {
			return fmt.Errorf("params: vertex %d starts at %d, expected %d", v, r.Offset, next)
		}
		next = r.End()
	}
	if next != l.total {
		return fmt.Errorf("params: ranges cover %d of %d parameters", next, l.total)
	}
	return nil
}

// SizeMismatchError reports a flat vector of the wrong length.
type SizeMismatchError struct {
	Expected int
	Got      int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("params: expected %d values, got %d", e.Expected, e.Got)
}

// Buffer is a flat, exclusively owned float64 store.
type Buffer struct {
	data []float64
}

// NewBuffer allocates a zeroed buffer of n values.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]float64, n)}
}

// FromSlice builds a buffer over v. With clone false the buffer adopts v and
// the caller must stop using it.
func FromSlice(v []float64, clone bool) *Buffer {
	if clone {
		return &Buffer{data: append(make([]float64, 0, len(v)), v...)}
	}
	return &Buffer{data: v}
}

// Len returns the number of values.
func (b *Buffer) Len() int { return len(b.data) }

// Data returns the backing slice.
func (b *Buffer) Data() []float64 { return b.data }

// Snapshot returns a copy of the contents.
func (b *Buffer) Snapshot() []float64 {
	return append(make([]float64, 0, len(b.data)), b.data...)
}

// Assign copies v into the buffer. Length must match exactly.
func (b *Buffer) Assign(v []float64) error {
	if len(v) != len(b.data) {
		return &SizeMismatchError{Expected: len(b.data), Got: len(v)}
	}
	copy(b.data, v)
	return nil
}

// Zero sets every value to 0.
func (b *Buffer) Zero() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// View returns a view of range r.
func (b *Buffer) View(r Range) View {
	return View{buf: b, r: r}
}

// View is a (buffer, range) pair. The zero View is empty.
type View struct {
	buf *Buffer
	r   Range
}

// Len returns the view length.
func (v View) Len() int { return v.r.Length }

// Range returns the region of the owning buffer covered by v.
func (v View) Range() Range { return v.r }

// Data resolves the view to a slice of the owning buffer.
func (v View) Data() []float64 {
	if v.buf == nil || v.r.Length == 0 {
		return nil
	}
	return v.buf.data[v.r.Offset:v.r.End():v.r.End()]
}

// Sub returns the sub-view [off, off+n) relative to v.
//
// Panics if the sub-view exceeds v.
func (v View) Sub(off, n int) View {
	if off < 0 || n < 0 || off+n > v.r.Length {
		panic(fmt.Sprintf("params: sub-view [%d, %d) exceeds view of length %d", off, off+n, v.r.Length))
	}
	return View{buf: v.buf, r: Range{Offset: v.r.Offset + off, Length: n}}
}

// CopyFrom overwrites the view with src.
func (v View) CopyFrom(src []float64) error {
	if len(src) != v.r.Length {
		return &SizeMismatchError{Expected: v.r.Length, Got: len(src)}
	}
	copy(v.Data(), src)
	return nil
}
