package rules

// Risk tier thresholds.
const (
	ThresholdCritical = 90
	ThresholdHigh     = 70
	ThresholdMedium   = 40
	ThresholdLow      = 15

	MaxRiskScore = 100
)

// AggregateRisk sums the weights of matched rules and clamps the result to
// [0, MaxRiskScore]. The score is monotonic in every weight.
func AggregateRisk(weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
		if total >= MaxRiskScore {
			return MaxRiskScore
		}
	}
	return total
}

// LevelFor maps a risk score to its tier.
func LevelFor(score int) RiskLevel {
	switch {
	case score >= ThresholdCritical:
		return RiskCritical
	case score >= ThresholdHigh:
		return RiskHigh
	case score >= ThresholdMedium:
		return RiskMedium
	case score >= ThresholdLow:
		return RiskLow
	default:
		return RiskMinimal
	}
}
