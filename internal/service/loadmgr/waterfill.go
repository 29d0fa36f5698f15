package loadmgr

import (
	"math"

	"github.com/gridwatt/stationd/internal/domain"
)

// waterFill computes the proportional-fair allocation over a single
// pooled budget, capped per session by the vehicle's max power.
//
// The objective is maximize Σ log(allocated_i) subject to
// Σ allocated_i ≤ budget and 0 ≤ allocated_i ≤ vehicleMax_i. The KKT
// conditions give allocated_i = min(cap_i, λ/weight_i) with weight
// 1/allocated_i, so each round raises a common water level λ via binary
// search until the capped sum meets the budget, then re-derives the
// weights. Sessions with equal caps converge to equal shares.
func waterFill(snapshot []domain.SessionView, budget float64) []float64 {
	n := len(snapshot)
	caps := make([]float64, n)
	for i, s := range snapshot {
		caps[i] = s.VehicleMaxPower
	}

	alloc := make([]float64, n)
	for i := range alloc {
		alloc[i] = epsilonKW
	}

	for iter := 0; iter < maxIterations; iter++ {
		lambda := findLambda(alloc, caps, budget)

		maxChange := 0.0
		for i := range alloc {
			// weight_i = 1/alloc_i, so λ/weight_i = λ·alloc_i
			next := math.Min(caps[i], lambda*alloc[i])
			next = math.Max(next, epsilonKW)
			maxChange = math.Max(maxChange, math.Abs(next-alloc[i]))
			alloc[i] = next
		}

		if maxChange < convergenceThresholdKW {
			break
		}
	}

	// The epsilon floor exists only to keep weights finite; committed
	// allocations never exceed the vehicle cap.
	for i := range alloc {
		alloc[i] = math.Min(alloc[i], caps[i])
	}
	return alloc
}

// findLambda binary-searches the water level so that the capped sum
// bounds the target budget.
func findLambda(alloc, caps []float64, target float64) float64 {
	low, high := 0.0, target*1000

	for i := 0; i < binarySearchIterations; i++ {
		lambda := (low + high) / 2

		var sum float64
		for j := range alloc {
			sum += math.Min(caps[j], lambda*alloc[j])
		}

		if sum > target {
			high = lambda
		} else {
			low = lambda
		}
	}

	return (low + high) / 2
}
