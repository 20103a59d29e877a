package synth

import "math/rand/v2"

// NoiseAmplitude bounds the per-sample noise injected in enhanced mode.
const NoiseAmplitude = 0.01

// NoiseSource yields one noise value per sample in [-NoiseAmplitude, NoiseAmplitude).
type NoiseSource interface {
	Next() float64
}

// NoiseFunc adapts a function to NoiseSource.
type NoiseFunc func() float64

func (f NoiseFunc) Next() float64 { return f() }

// RandomNoise draws from the global generator and is safe for concurrent use.
func RandomNoise() NoiseSource {
	return NoiseFunc(func() float64 {
		return (rand.Float64() - 0.5) * 2 * NoiseAmplitude
	})
}

// SeededNoise is reproducible for a given seed. It must not be shared
// between goroutines.
func SeededNoise(seed uint64) NoiseSource {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return NoiseFunc(func() float64 {
		return (r.Float64() - 0.5) * 2 * NoiseAmplitude
	})
}

// ZeroNoise makes enhanced output fully deterministic.
func ZeroNoise() NoiseSource {
	return NoiseFunc(func() float64 { return 0 })
}
