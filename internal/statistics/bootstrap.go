// Package statistics provides resampling estimates for run-level accuracy.
package statistics

import (
	"math"
	"math/rand"
	"sort"
)

// ConfidenceInterval is a percentile-bootstrap interval around a sample mean.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

const (
	DefaultBootstrapIterations = 10000
	DefaultConfidenceLevel     = 0.95
)

// BootstrapCI estimates a confidence interval for the mean of samples.
// With fewer than two samples the interval collapses onto the mean.
func BootstrapCI(samples []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCIWithSeed(samples, confidenceLevel, -1)
}

// BootstrapCIWithSeed is BootstrapCI with a fixed seed; a negative seed is random.
func BootstrapCIWithSeed(samples []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	m := mean(samples)
	n := len(samples)
	if n < 2 {
		return ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: confidenceLevel}
	}

	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	iters := DefaultBootstrapIterations
	means := make([]float64, iters)
	resample := make([]float64, n)
	for i := range means {
		for j := range resample {
			resample[j] = samples[rng.Intn(n)]
		}
		means[i] = mean(resample)
	}
	sort.Float64s(means)

	alpha := 1 - confidenceLevel
	lo := int(math.Floor(alpha / 2 * float64(iters)))
	hi := min(int(math.Floor((1-alpha/2)*float64(iters))), iters-1)

	return ConfidenceInterval{
		Lower:           means[lo],
		Upper:           means[hi],
		Mean:            m,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

// IsSignificant reports whether the interval excludes zero.
func IsSignificant(ci ConfidenceInterval) bool {
	return ci.Lower > 0 || ci.Upper < 0
}

// Indicators maps outcomes to 1/0 samples.
func Indicators(outcomes []bool) []float64 {
	out := make([]float64, len(outcomes))
	for i, ok := range outcomes {
		if ok {
			out[i] = 1
		}
	}
	return out
}

// PairedDifferences returns after[i]-before[i] for paired indicator samples.
// Both slices must have the same length; extra entries are ignored.
func PairedDifferences(before, after []bool) []float64 {
	n := min(len(before), len(after))
	out := make([]float64, n)
	for i := range n {
		switch {
		case after[i] && !before[i]:
			out[i] = 1
		case before[i] && !after[i]:
			out[i] = -1
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
