// Package workspace provides scoped scratch arenas for graph execution.
//
// Three arena kinds nest strictly: Cache (outermost, lives across the
// windows of a truncated-BPTT fit), External (one forward+backward pass,
// holds vertex inputs and epsilons) and FeedForward (one vertex step). Each
// arena is a stack of frames. Memory handed out inside a frame is recycled
// when the frame exits, and every Ref into that frame turns stale: reading
// it returns ErrStaleRef rather than recycled data.
//
// The scope is part of the Ref type, so a Ref[FeedForward] cannot be stored
// where a Ref[External] is expected. Crossing scopes requires Promote.
package workspace

import (
	"errors"
	"fmt"

	"github.com/born-ml/dagnet/internal/tensor"
)

var (
	// ErrStaleRef is returned when a Ref outlives the frame it was created in.
	ErrStaleRef = errors.New("workspace: reference used after its frame exited")

	// ErrScopeNotActive is returned when allocating or exiting with no open frame.
	ErrScopeNotActive = errors.New("workspace: no active frame")

	// ErrPromotionDirection is returned when promoting into an inner scope.
	ErrPromotionDirection = errors.New("workspace: promotion must move to an enclosing scope")
)

// Scope tags an arena kind. Level orders scopes from outermost (0) inward.
type Scope interface {
	Name() string
	Level() int
}

// Cache is the outermost scope.
type Cache struct{}

// External is the per-pass scope for vertex inputs and epsilons.
type External struct{}

// FeedForward is the per-vertex scratch scope.
type FeedForward struct{}

func (Cache) Name() string       { return "cache" }
func (Cache) Level() int         { return 0 }
func (External) Name() string    { return "external" }
func (External) Level() int      { return 1 }
func (FeedForward) Name() string { return "feedforward" }
func (FeedForward) Level() int   { return 2 }

// Mode selects whether arenas recycle memory.
type Mode int

const (
	// ModeEnabled recycles released slices through a size-bucketed pool.
	ModeEnabled Mode = iota
	// ModeNone allocates fresh memory every time. Refs still go stale.
	ModeNone
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "enabled":
		return ModeEnabled, nil
	case "none":
		return ModeNone, nil
	default:
		return ModeEnabled, fmt.Errorf("workspace: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	return "enabled"
}

type frame struct {
	id     uint64
	pooled [][]float64
}

// Arena is a stack of frames for one scope.
type Arena[S Scope] struct {
	pool   *pool // nil in ModeNone
	frames []frame
	nextID uint64
}

// NewArena creates an arena. Pooling is disabled for ModeNone.
func NewArena[S Scope](mode Mode, cfg PoolConfig) *Arena[S] {
	a := &Arena[S]{}
	if mode == ModeEnabled {
		a.pool = newPool(cfg)
	}
	return a
}

// Scope returns the arena's scope tag.
func (a *Arena[S]) Scope() S {
	var s S
	return s
}

// Enter opens a new frame.
func (a *Arena[S]) Enter() {
	a.nextID++
	a.frames = append(a.frames, frame{id: a.nextID})
}

// Exit closes the innermost frame, recycling its memory.
func (a *Arena[S]) Exit() error {
	if len(a.frames) == 0 {
		return fmt.Errorf("%w: exit %s", ErrScopeNotActive, a.Scope().Name())
	}
	top := a.frames[len(a.frames)-1]
	a.frames = a.frames[:len(a.frames)-1]
	if a.pool != nil {
		for _, buf := range top.pooled {
			a.pool.release(buf)
		}
	}
	return nil
}

// Do runs fn inside a fresh frame. The frame is closed even when fn fails.
func (a *Arena[S]) Do(fn func() error) (err error) {
	a.Enter()
	defer func() {
		if exitErr := a.Exit(); err == nil {
			err = exitErr
		}
	}()
	return fn()
}

// Active reports whether a frame is open.
func (a *Arena[S]) Active() bool { return len(a.frames) > 0 }

// Depth returns the number of open frames.
func (a *Arena[S]) Depth() int { return len(a.frames) }

func (a *Arena[S]) current() (*frame, int, error) {
	if len(a.frames) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrScopeNotActive, a.Scope().Name())
	}
	d := len(a.frames) - 1
	return &a.frames[d], d, nil
}

func (a *Arena[S]) live(id uint64, depth int) bool {
	return depth < len(a.frames) && a.frames[depth].id == id
}

// Alloc returns a zeroed tensor owned by the current frame.
func (a *Arena[S]) Alloc(shape ...int) (Ref[S], error) {
	f, d, err := a.current()
	if err != nil {
		return Ref[S]{}, err
	}
	n := tensor.Shape(shape).NumElements()
	var data []float64
	if a.pool != nil {
		data = a.pool.acquire(n)
		f.pooled = append(f.pooled, data)
	} else {
		data = make([]float64, n)
	}
	t, err := tensor.New(tensor.Shape(shape), data)
	if err != nil {
		return Ref[S]{}, err
	}
	return Ref[S]{t: t, arena: a, id: f.id, depth: d}, nil
}

// Copy allocates a frame-owned copy of src.
func (a *Arena[S]) Copy(src *tensor.Tensor) (Ref[S], error) {
	ref, err := a.Alloc(src.Shape()...)
	if err != nil {
		return Ref[S]{}, err
	}
	copy(ref.t.Data(), src.Data())
	return ref, nil
}

// Adopt binds a heap tensor to the current frame without copying. The memory
// is never recycled, but the Ref still goes stale on exit.
func (a *Arena[S]) Adopt(t *tensor.Tensor) (Ref[S], error) {
	f, d, err := a.current()
	if err != nil {
		return Ref[S]{}, err
	}
	return Ref[S]{t: t, arena: a, id: f.id, depth: d}, nil
}

// Stats returns the arena's pool statistics. Zero in ModeNone.
func (a *Arena[S]) Stats() Stats {
	if a.pool == nil {
		return Stats{}
	}
	return a.pool.snapshot()
}

// Reset drops pooled memory. Open frames are left untouched.
func (a *Arena[S]) Reset() {
	if a.pool != nil {
		a.pool.clear()
	}
}

// Ref is a scope-tagged handle to a tensor inside an arena frame.
type Ref[S Scope] struct {
	t     *tensor.Tensor
	arena *Arena[S]
	id    uint64
	depth int
}

// IsZero reports whether r was never bound.
func (r Ref[S]) IsZero() bool { return r.arena == nil }

// Valid reports whether r's frame is still open.
func (r Ref[S]) Valid() bool {
	return r.arena != nil && r.arena.live(r.id, r.depth)
}

// Get returns the tensor, or ErrStaleRef if its frame has exited.
func (r Ref[S]) Get() (*tensor.Tensor, error) {
	if r.arena == nil {
		return nil, nil
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%w (%s scope)", ErrStaleRef, r.arena.Scope().Name())
	}
	return r.t, nil
}

// Detach returns a heap copy that stays valid after the frame exits.
func (r Ref[S]) Detach() (*tensor.Tensor, error) {
	t, err := r.Get()
	if err != nil || t == nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Promote copies r into the current frame of an enclosing scope's arena.
func Promote[From, To Scope](r Ref[From], to *Arena[To]) (Ref[To], error) {
	var from From
	var dst To
	if dst.Level() > from.Level() {
		return Ref[To]{}, fmt.Errorf("%w: %s -> %s", ErrPromotionDirection, from.Name(), dst.Name())
	}
	t, err := r.Get()
	if err != nil {
		return Ref[To]{}, err
	}
	if t == nil {
		return Ref[To]{}, nil
	}
	return to.Copy(t)
}
