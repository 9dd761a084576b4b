package domain

import (
	"fmt"
	"sort"
)

// AutoReleaseRule is release-timing configuration owned by admin tooling and
// read-only to the engine. Empty selector fields are wildcards; a nil value
// bound is unbounded on that side.
type AutoReleaseRule struct {
	RuleID                    string
	ContractorTier            string
	JobValueMin               *float64
	JobValueMax               *float64
	JobCategory               string
	HoldPeriodDays            int
	RequirePhotoVerification  bool
	MinPhotoScore             float64
	RiskMultiplier            float64
	DisputeHistoryPenaltyDays int
}

// DefaultHoldPeriodDays are the catch-all hold periods per tier, used to seed
// the rule table when no override is configured.
var DefaultHoldPeriodDays = map[string]int{
	TierPlatinum: 1,
	TierGold:     3,
	TierSilver:   5,
	TierBronze:   7,
}

// ResolvedRule is the outcome of rule resolution for one transaction. The
// hold period already includes the dispute-history penalty; the risk
// multiplier is applied later by the risk assessor when risk is elevated.
type ResolvedRule struct {
	RuleID                   string
	HoldPeriodDays           int
	RequirePhotoVerification bool
	MinPhotoScore            float64
	RiskMultiplier           float64
}

func (r AutoReleaseRule) matches(tier string, jobValue float64, category string) bool {
	if r.ContractorTier != "" && r.ContractorTier != tier {
		return false
	}
	if r.JobValueMin != nil && jobValue < *r.JobValueMin {
		return false
	}
	if r.JobValueMax != nil && jobValue > *r.JobValueMax {
		return false
	}
	if r.JobCategory != "" && r.JobCategory != category {
		return false
	}
	return true
}

// specificity counts non-wildcard selectors; the value range counts once.
func (r AutoReleaseRule) specificity() int {
	n := 0
	if r.ContractorTier != "" {
		n++
	}
	if r.JobValueMin != nil || r.JobValueMax != nil {
		n++
	}
	if r.JobCategory != "" {
		n++
	}
	return n
}

// ResolveRule selects the most specific matching rule and folds in the
// contractor's dispute history. Selection is deterministic: most non-wildcard
// selectors win, ties break to the lowest hold period, then to rule ID.
// A miss is a fatal configuration error, not a retry condition.
func ResolveRule(rules []AutoReleaseRule, tier string, jobValue float64, category string, disputeCount int) (ResolvedRule, error) {
	matched := make([]AutoReleaseRule, 0, len(rules))
	for _, r := range rules {
		if r.matches(tier, jobValue, category) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return ResolvedRule{}, fmt.Errorf("%w: tier=%q value=%.2f category=%q", ErrNoMatchingRule, tier, jobValue, category)
	}

	sort.Slice(matched, func(i, j int) bool {
		si, sj := matched[i].specificity(), matched[j].specificity()
		if si != sj {
			return si > sj
		}
		if matched[i].HoldPeriodDays != matched[j].HoldPeriodDays {
			return matched[i].HoldPeriodDays < matched[j].HoldPeriodDays
		}
		return matched[i].RuleID < matched[j].RuleID
	})

	best := matched[0]
	hold := best.HoldPeriodDays
	if disputeCount > 0 && best.DisputeHistoryPenaltyDays > 0 {
		hold += disputeCount * best.DisputeHistoryPenaltyDays
	}
	multiplier := best.RiskMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return ResolvedRule{
		RuleID:                   best.RuleID,
		HoldPeriodDays:           hold,
		RequirePhotoVerification: best.RequirePhotoVerification,
		MinPhotoScore:            best.MinPhotoScore,
		RiskMultiplier:           multiplier,
	}, nil
}
