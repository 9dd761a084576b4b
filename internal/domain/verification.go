package domain

import "time"

// VerificationStatus is the normalized outcome of a photo verification
// attempt.
type VerificationStatus string

const (
	VerificationNone         VerificationStatus = ""
	VerificationVerified     VerificationStatus = "verified"
	VerificationFailed       VerificationStatus = "failed"
	VerificationManualReview VerificationStatus = "manual_review"
)

// Score thresholds. Downstream rule evaluation depends on these cut points;
// they are fixed rather than configurable.
const (
	VerifyScoreThreshold = 0.7
	FailScoreThreshold   = 0.4
)

// Composition weights for the verification score.
const (
	descriptionMatchWeight    = 0.5
	photoQualityWeight        = 0.3
	completionIndicatorWeight = 0.2
	concernPenalty            = 0.05
)

// PhotoAnalysis is the raw analyzer output for one set of completion photos.
type PhotoAnalysis struct {
	QualityScore         float64
	MatchesDescription   bool
	CompletionIndicators []string
	Concerns             []string
}

// VerificationOutcome is the scorer's normalized result. Unavailable is an
// explicit variant rather than a sentinel score so downstream code cannot
// mistake the neutral 0.5 for a real measurement.
type VerificationOutcome struct {
	Status      VerificationStatus
	Score       float64
	Unavailable bool
}

// ScoreVerification composes the verification score from description match
// (50%), photo quality (30%) and completion indicators (20%), minus a penalty
// per flagged concern, then maps it onto a status using the fixed thresholds.
func ScoreVerification(a PhotoAnalysis) VerificationOutcome {
	score := photoQualityWeight * clamp01(a.QualityScore)
	if a.MatchesDescription {
		score += descriptionMatchWeight
	}
	indicators := float64(len(a.CompletionIndicators)) / 3.0
	score += completionIndicatorWeight * clamp01(indicators)
	score -= concernPenalty * float64(len(a.Concerns))
	score = clamp01(score)

	status := VerificationManualReview
	switch {
	case score >= VerifyScoreThreshold && a.MatchesDescription:
		status = VerificationVerified
	case score < FailScoreThreshold || !a.MatchesDescription:
		status = VerificationFailed
	}
	return VerificationOutcome{Status: status, Score: score}
}

// UnavailableVerification is the soft-fail outcome used when the analyzer
// times out, errors, or is not configured. The stored score is neutral and
// the escrow parks in manual review instead of failing the pipeline.
func UnavailableVerification() VerificationOutcome {
	return VerificationOutcome{Status: VerificationManualReview, Score: 0.5, Unavailable: true}
}

// PhotoVerificationResult is one immutable row per verification attempt. A
// re-verification appends a new row; the transaction reflects the latest.
type PhotoVerificationResult struct {
	ResultID             string
	EscrowID             string
	JobID                string
	PhotoURLs            []string
	VerificationScore    float64
	Status               VerificationStatus
	MatchesJobDescription bool
	CompletionIndicators []string
	Concerns             []string
	AnalyzerUnavailable  bool
	AnalyzedAt           time.Time
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
