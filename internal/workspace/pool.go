package workspace

import "sync"

// bucket represents the size category of a pooled slice.
type bucket int

const (
	smallBucket bucket = iota
	mediumBucket
	largeBucket
)

const (
	// Thresholds in float64 elements (4KB and 1MB of storage).
	smallThreshold  = 512
	mediumThreshold = 128 * 1024

	// DefaultMaxPooled is the per-bucket limit used when a PoolConfig leaves it zero.
	DefaultMaxPooled = 64
)

// PoolConfig controls how many released slices an arena keeps for reuse.
type PoolConfig struct {
	MaxPerBucket int
}

// Stats reports pool usage.
type Stats struct {
	Allocated uint64 // Slices created because no pooled slice fit.
	Released  uint64 // Slices handed back on frame exit.
	Hits      uint64
	Misses    uint64
	Pooled    int // Slices currently held for reuse.
}

// Add returns the element-wise sum of two stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Allocated: s.Allocated + o.Allocated,
		Released:  s.Released + o.Released,
		Hits:      s.Hits + o.Hits,
		Misses:    s.Misses + o.Misses,
		Pooled:    s.Pooled + o.Pooled,
	}
}

// pool recycles float64 slices by size category.
type pool struct {
	limit   int
	buckets [3][][]float64

	mu    sync.Mutex
	stats Stats
}

func newPool(cfg PoolConfig) *pool {
	limit := cfg.MaxPerBucket
	if limit <= 0 {
		limit = DefaultMaxPooled
	}
	return &pool{limit: limit}
}

func categorize(n int) bucket {
	if n < smallThreshold {
		return smallBucket
	}
	if n < mediumThreshold {
		return mediumBucket
	}
	return largeBucket
}

// acquire returns a zeroed slice of length n, reusing a pooled one when possible.
func (p *pool) acquire(n int) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := categorize(n)
	list := p.buckets[b]
	for i, buf := range list {
		if cap(buf) >= n {
			p.buckets[b] = append(list[:i], list[i+1:]...)
			p.stats.Hits++
			out := buf[:n]
			for j := range out {
				out[j] = 0
			}
			return out
		}
	}

	p.stats.Misses++
	p.stats.Allocated++
	return make([]float64, n)
}

// release hands buf back. Full buckets drop it for the GC.
func (p *pool) release(buf []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Released++
	b := categorize(cap(buf))
	if len(p.buckets[b]) >= p.limit {
		return
	}
	p.buckets[b] = append(p.buckets[b], buf[:cap(buf)])
}

func (p *pool) snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	for _, list := range p.buckets {
		s.Pooled += len(list)
	}
	return s
}

func (p *pool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.buckets {
		p.buckets[i] = p.buckets[i][:0]
	}
}
