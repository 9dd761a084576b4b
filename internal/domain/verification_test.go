package domain

import (
	"math"
	"testing"
)

func TestScoreVerificationFullMarks(t *testing.T) {
	t.Parallel()

	out := ScoreVerification(PhotoAnalysis{
		QualityScore:         1.0,
		MatchesDescription:   true,
		CompletionIndicators: []string{"tiling finished", "grout sealed", "area cleaned"},
	})
	if math.Abs(out.Score-1.0) > 1e-9 {
		t.Fatalf("expected score 1.0, got %v", out.Score)
	}
	if out.Status != VerificationVerified {
		t.Fatalf("expected verified, got %s", out.Status)
	}
}

func TestScoreVerificationThresholdBoundaries(t *testing.T) {
	t.Parallel()

	// 0.5 + 0.3*0.75 = 0.725, above the verify threshold.
	out := ScoreVerification(PhotoAnalysis{
		QualityScore:       0.75,
		MatchesDescription: true,
	})
	if out.Status != VerificationVerified {
		t.Fatalf("score %v should verify, got %s", out.Score, out.Status)
	}

	// One concern drops it to 0.675, into the manual review band.
	out = ScoreVerification(PhotoAnalysis{
		QualityScore:       0.75,
		MatchesDescription: true,
		Concerns:           []string{"poor lighting"},
	})
	if out.Status != VerificationManualReview {
		t.Fatalf("expected manual_review just below threshold, got %s (score %v)", out.Status, out.Score)
	}
}

func TestScoreVerificationFailsWithoutDescriptionMatch(t *testing.T) {
	t.Parallel()

	// Even a high composite score cannot verify without a description match.
	out := ScoreVerification(PhotoAnalysis{
		QualityScore:         1.0,
		MatchesDescription:   false,
		CompletionIndicators: []string{"a", "b", "c"},
	})
	if out.Status != VerificationFailed {
		t.Fatalf("expected failed without description match, got %s", out.Status)
	}
}

func TestScoreVerificationLowScoreFails(t *testing.T) {
	t.Parallel()

	out := ScoreVerification(PhotoAnalysis{
		QualityScore:       0.2,
		MatchesDescription: true,
		Concerns:           []string{"wrong room", "incomplete", "blurry", "duplicate"},
	})
	// 0.5 + 0.06 - 0.20 = 0.36, below the fail threshold.
	if out.Score >= FailScoreThreshold {
		t.Fatalf("expected score below fail threshold, got %v", out.Score)
	}
	if out.Status != VerificationFailed {
		t.Fatalf("expected failed, got %s", out.Status)
	}
}

func TestScoreVerificationIndicatorsCapAtThree(t *testing.T) {
	t.Parallel()

	three := ScoreVerification(PhotoAnalysis{MatchesDescription: true, CompletionIndicators: []string{"a", "b", "c"}})
	six := ScoreVerification(PhotoAnalysis{MatchesDescription: true, CompletionIndicators: []string{"a", "b", "c", "d", "e", "f"}})
	if three.Score != six.Score {
		t.Fatalf("indicator contribution should cap: three=%v six=%v", three.Score, six.Score)
	}
}

func TestScoreVerificationClampsToZero(t *testing.T) {
	t.Parallel()

	concerns := make([]string, 20)
	for i := range concerns {
		concerns[i] = "concern"
	}
	out := ScoreVerification(PhotoAnalysis{QualityScore: 0.1, Concerns: concerns})
	if out.Score != 0 {
		t.Fatalf("expected score clamped to 0, got %v", out.Score)
	}
}

func TestUnavailableVerification(t *testing.T) {
	t.Parallel()

	out := UnavailableVerification()
	if !out.Unavailable {
		t.Fatalf("expected unavailable flag")
	}
	if out.Status != VerificationManualReview {
		t.Fatalf("expected manual_review, got %s", out.Status)
	}
	if out.Score != 0.5 {
		t.Fatalf("expected neutral 0.5 score, got %v", out.Score)
	}
}
