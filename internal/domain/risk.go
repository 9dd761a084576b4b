package domain

import (
	"fmt"
	"strings"
)

// RiskPrediction is the dispute model's output for one job/contractor pair.
type RiskPrediction struct {
	Probability float64
	Factors     []string
}

// RiskAssessment decides whether the hold is extended at release time and by
// how much. It re-runs at every sweep attempt: new dispute signals may arrive
// during the hold window, so risk is never decided once and cached.
type RiskAssessment struct {
	Extend               bool
	NewHoldPeriodDays    int
	Reason               string
	Probability          float64
	PredictorUnavailable bool
}

// AssessRisk combines the dispute prediction with the resolved rule's risk
// multiplier. A nil prediction means the predictor was unreachable; the
// system fails open and does not extend rather than delaying payment on an
// unreachable model. The dispute extension (+7 days above the probability
// threshold) and the multiplier extension (base*(multiplier-1) when the job
// value or category is elevated) compose additively.
func AssessRisk(pred *RiskPrediction, baseHoldDays int, riskMultiplier float64, elevated bool, probabilityThreshold float64) RiskAssessment {
	out := RiskAssessment{NewHoldPeriodDays: baseHoldDays}
	if pred == nil {
		out.PredictorUnavailable = true
		out.Reason = "dispute_risk_unknown: predictor unavailable"
		return out
	}

	out.Probability = pred.Probability
	extraDays := 0
	reasons := make([]string, 0, 2)

	if pred.Probability > probabilityThreshold {
		extraDays += DisputeRiskExtensionDays
		reasons = append(reasons, fmt.Sprintf("high_dispute_risk: %s", strings.Join(pred.Factors, ", ")))
	}
	if elevated && riskMultiplier > 1 {
		multiplierDays := int(float64(baseHoldDays) * (riskMultiplier - 1))
		if multiplierDays > 0 {
			extraDays += multiplierDays
			reasons = append(reasons, fmt.Sprintf("risk_multiplier: x%.2f", riskMultiplier))
		}
	}

	if extraDays > 0 {
		out.Extend = true
		out.NewHoldPeriodDays = baseHoldDays + extraDays
		out.Reason = strings.Join(reasons, "; ")
	}
	return out
}

// DisputeRiskExtensionDays is added to the hold when predicted dispute
// probability exceeds the configured threshold.
const DisputeRiskExtensionDays = 7
