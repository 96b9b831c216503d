package controller

import (
	"tclab_control/internal/models"

	"gonum.org/v1/gonum/stat"
)

// SteadyStateWindow is how many trailing samples are averaged.
const SteadyStateWindow = 10

// SteadyStateError returns setpoint minus the mean of the last
// SteadyStateWindow measurements (all of them for shorter runs). ok is false
// when there are no samples.
func SteadyStateError(setpoint float64, samples []models.Sample) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	k := SteadyStateWindow
	if len(samples) < k {
		k = len(samples)
	}
	tail := make([]float64, 0, k)
	for _, s := range samples[len(samples)-k:] {
		tail = append(tail, s.Measured)
	}
	return setpoint - stat.Mean(tail, nil), true
}
