// Package equity scores how evenly travel time is shared across a group.
package equity

import (
	"math"

	"meeting-point-service/internal/domain"
)

// Level is the fairness band a Jain's index falls into.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
	LevelCritical  Level = "critical"
)

// JainsIndex computes Jain's Fairness Index (Σt)² / (n·Σt²).
//
// Empty input yields 0. All-zero input also yields 0 rather than 1; callers
// classify that case as critical.
func JainsIndex(times []float64) float64 {
	if len(times) == 0 {
		return 0
	}

	var sum, sumSq float64
	for _, t := range times {
		sum += t
		sumSq += t * t
	}
	if sumSq == 0 {
		return 0
	}

	return clamp01((sum * sum) / (float64(len(times)) * sumSq))
}

// LevelOf maps an index to a band. Each threshold belongs to the lower band.
func LevelOf(jainsIndex float64) Level {
	switch {
	case jainsIndex > 0.9:
		return LevelExcellent
	case jainsIndex > 0.8:
		return LevelGood
	case jainsIndex > 0.6:
		return LevelFair
	case jainsIndex > 0.4:
		return LevelPoor
	default:
		return LevelCritical
	}
}

// Score blends unfairness and absolute spread: (1-j)*0.6 + (range/60)*0.4.
func Score(jainsIndex, timeRange float64) float64 {
	return (1-jainsIndex)*0.6 + (timeRange/60)*0.4
}

// Metrics computes equity metrics with every entry weighted equally.
func Metrics(times []float64) domain.EquityMetrics {
	if len(times) == 0 {
		return domain.EquityMetrics{EquityScore: Score(0, 0)}
	}

	min, max := times[0], times[0]
	var sum float64
	for _, t := range times {
		sum += t
		min = math.Min(min, t)
		max = math.Max(max, t)
	}

	j := JainsIndex(times)
	timeRange := max - min
	return domain.EquityMetrics{
		JainsIndex:  j,
		TimeRange:   timeRange,
		AverageTime: sum / float64(len(times)),
		EquityScore: Score(j, timeRange),
	}
}

// WeightedMetrics is Metrics with per-entry importance weights.
//
// The index becomes (Σwt)² / (W·Σwt²) with W = Σw, and the average Σwt / W.
// Weights <= 0 (or a missing weight) count as 1, so all-ones weights give the
// same numbers as Metrics.
func WeightedMetrics(times []float64, weights []float64) domain.EquityMetrics {
	if len(times) == 0 {
		return domain.EquityMetrics{EquityScore: Score(0, 0)}
	}

	var sumW, sumWT, sumWTT float64
	min, max := times[0], times[0]
	for i, t := range times {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		sumW += w
		sumWT += w * t
		sumWTT += w * t * t
		min = math.Min(min, t)
		max = math.Max(max, t)
	}

	j := 0.0
	if sumWTT != 0 {
		j = clamp01((sumWT * sumWT) / (sumW * sumWTT))
	}

	timeRange := max - min
	return domain.EquityMetrics{
		JainsIndex:  j,
		TimeRange:   timeRange,
		AverageTime: sumWT / sumW,
		EquityScore: Score(j, timeRange),
	}
}

// Floating error can push the ratio a hair past 1 for identical inputs.
func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
