package data

import "math/rand/v2"

// Linear generates samples of y = w·x + bias + noise with x drawn uniformly
// from [-1, 1). The same seed always yields the same samples.
func Linear(n int, weights []float64, bias, noise float64, seed uint64) []Sample {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	samples := make([]Sample, n)
	for i := range samples {
		x := make([]float64, len(weights))
		y := bias
		for j, w := range weights {
			x[j] = rng.Float64()*2 - 1
			y += w * x[j]
		}
		y += rng.NormFloat64() * noise
		samples[i] = Sample{Features: x, Target: y}
	}

	return samples
}

// Coefficients draws a weight vector and a bias from [-1, 1) for use with
// Linear.
func Coefficients(features int, seed uint64) ([]float64, float64) {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	weights := make([]float64, features)
	for i := range weights {
		weights[i] = rng.Float64()*2 - 1
	}

	return weights, rng.Float64()*2 - 1
}
