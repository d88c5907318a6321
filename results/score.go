// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import "math"

// ScoreInput holds the raw metrics the performance score is built from.
type ScoreInput struct {
	Throughput    float64
	ReceptionRate float64
	LatencyMS     float64
	SuccessRate   float64
	LossRate      float64
	OutOfOrder    int64
	Reconnections int64
	CPU           float64
	Memory        float64
}

// Score weights. Resource usage is normalized and reported but weighs nothing.
const (
	WeightThroughput    = 0.20
	WeightReceptionRate = 0.20
	WeightLatency       = 0.15
	WeightSuccessRate   = 0.15
	WeightLossRate      = 0.10
	WeightOutOfOrder    = 0.05
	WeightReconnections = 0.05
	WeightCPU           = 0
	WeightMemory        = 0
)

// Score normalizes every metric to [0, 1], combines them with the fixed weights and
// returns the sum scaled to 0..100, rounded to two decimals.
func Score(in ScoreInput) float64 {
	terms := [...]struct{ value, weight float64 }{
		{math.Min(in.Throughput/10000, 1), WeightThroughput},
		{math.Min(in.ReceptionRate/10000, 1), WeightReceptionRate},
		{math.Max(0, 1-in.LatencyMS/1000), WeightLatency},
		{in.SuccessRate, WeightSuccessRate},
		{1 - in.LossRate, WeightLossRate},
		{math.Max(0, 1-float64(in.OutOfOrder)/1000), WeightOutOfOrder},
		{math.Max(0, 1-float64(in.Reconnections)/100), WeightReconnections},
		{1 - in.CPU/100, WeightCPU},
		{1 - in.Memory/100, WeightMemory},
	}

	var sum float64
	for _, t := range terms {
		sum += clamp01(t.value) * t.weight
	}
	return round2(sum * 100)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
