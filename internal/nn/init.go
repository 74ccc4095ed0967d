package nn

import (
	"math"
	"math/rand"
)

// Xavier (Glorot) initialization for weights.
//
// Fills dst with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// The generator is owned by the graph and seeded from its configuration,
// so identical configurations produce identical parameters.
func Xavier(rng *rand.Rand, fanIn, fanOut int, dst []float64) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range dst {
		dst[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
}

// Zeros clears dst. Used for bias initialization.
func Zeros(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
}

// Fill sets every element of dst to v.
func Fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}
