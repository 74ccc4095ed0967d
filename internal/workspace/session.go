package workspace

// Session bundles the three nested arenas used by one graph.
type Session struct {
	Mode        Mode
	Cache       *Arena[Cache]
	External    *Arena[External]
	FeedForward *Arena[FeedForward]
}

// NewSession creates the arenas for mode. The cache arena keeps more slices
// than the per-pass arenas because truncated windows reuse identical shapes.
func NewSession(mode Mode) *Session {
	return &Session{
		Mode:        mode,
		Cache:       NewArena[Cache](mode, PoolConfig{MaxPerBucket: 2 * DefaultMaxPooled}),
		External:    NewArena[External](mode, PoolConfig{}),
		FeedForward: NewArena[FeedForward](mode, PoolConfig{MaxPerBucket: DefaultMaxPooled / 2}),
	}
}

// Stats sums pool statistics over all arenas.
func (s *Session) Stats() Stats {
	return s.Cache.Stats().Add(s.External.Stats()).Add(s.FeedForward.Stats())
}

// Reset drops pooled memory in every arena.
func (s *Session) Reset() {
	s.Cache.Reset()
	s.External.Reset()
	s.FeedForward.Reset()
}
