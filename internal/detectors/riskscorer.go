package detectors

import (
	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/domain/organization"
)

// riskCategory groups pattern types into the four sub-scores the risk
// scorer weighs (§4.6 #9: "permission, data-access, activity, and
// ownership sub-scores").
type riskCategory string

const (
	categoryPermission riskCategory = "permission"
	categoryDataAccess  riskCategory = "data_access"
	categoryActivity    riskCategory = "activity"
	categoryOwnership   riskCategory = "ownership"
)

var categoryWeight = map[riskCategory]float64{
	categoryPermission: 0.30,
	categoryDataAccess: 0.30,
	categoryActivity:   0.25,
	categoryOwnership:  0.15,
}

var patternCategory = map[detection.PatternType]riskCategory{
	detection.PatternPermissionEscalation: categoryPermission,
	detection.PatternScopeCreep:           categoryPermission,
	detection.PatternDataExfilShape:       categoryDataAccess,
	detection.PatternCredentialSharing:    categoryDataAccess,
	detection.PatternVelocityAnomaly:      categoryActivity,
	detection.PatternBatchOperation:       categoryActivity,
	detection.PatternOffHoursActivity:     categoryActivity,
	detection.PatternTimingRegularity:     categoryActivity,
	detection.PatternDormantReactivation:  categoryActivity,
	detection.PatternCrossPlatformChain:   categoryOwnership,
	detection.PatternAIProviderCall:       categoryOwnership,
}

var severityWeight = map[detection.Severity]float64{
	detection.SeverityLow:      0.25,
	detection.SeverityMedium:   0.55,
	detection.SeverityHigh:     0.8,
	detection.SeverityCritical: 1.0,
}

// RiskScorer combines all of an automation's detection patterns into the
// aggregate RiskAssessment (§4.6 #9). It is not itself a Detector: it runs
// after the pattern-producing detectors so it can see their combined
// output, per §4.6.bis's ordering note.
type RiskScorer struct{}

func NewRiskScorer() *RiskScorer { return &RiskScorer{} }

// Score computes an automation's RiskAssessment from its current run's
// patterns, tie-broken per §4.6's rule: equal-severity patterns are
// considered in descending confidence order.
func (r *RiskScorer) Score(in Input, patterns []detection.DetectionPattern) detection.RiskAssessment {
	sorted := make([]detection.DetectionPattern, len(patterns))
	copy(sorted, patterns)
	sortBySeverityThenConfidence(sorted)

	categoryScore := map[riskCategory]float64{}
	categoryCount := map[riskCategory]int{}
	ids := make([]string, 0, len(sorted))
	for _, p := range sorted {
		cat, ok := patternCategory[p.Type]
		if !ok {
			cat = categoryActivity
		}
		contribution := severityWeight[p.Severity] * p.Confidence
		if contribution > categoryScore[cat] {
			categoryScore[cat] = contribution
		}
		categoryCount[cat]++
		ids = append(ids, p.ID)
	}

	var overall float64
	for cat, weight := range categoryWeight {
		overall += weight * categoryScore[cat] * 100
	}

	// A critical-severity pattern is, on its own, a critical finding
	// regardless of how few categories it touches (§8 seed test #1: a
	// velocity-only spike must still score >=90). The weighted sum above
	// only rewards breadth across categories, so it under-scores a single
	// sharp signal; escalate instead of renormalizing so multi-category
	// assessments keep their existing weighted value as a floor.
	for _, p := range sorted {
		if p.Severity == detection.SeverityCritical && overall < 90 {
			overall = 90
			break
		}
	}

	thresholds := in.Organization.Settings.RiskThresholds
	if thresholds == (organization.RiskThresholds{}) {
		thresholds = organization.DefaultRiskThresholds()
	}
	score := int(overall)
	if score > 100 {
		score = 100
	}

	return detection.RiskAssessment{
		OrganizationID:         in.Organization.ID,
		AutomationID:           in.Automation.ID,
		Score:                  score,
		Level:                  detection.LevelForScore(score, thresholds.LowMax, thresholds.MediumMax, thresholds.HighMax),
		ContributingPatternIDs: ids,
	}
}

// sortBySeverityThenConfidence implements §4.6's tie-break rule with a
// simple insertion sort; run sizes per automation are small (single-digit
// pattern counts), so this stays O(n^2)-cheap in practice.
func sortBySeverityThenConfidence(patterns []detection.DetectionPattern) {
	rank := map[detection.Severity]int{
		detection.SeverityCritical: 3,
		detection.SeverityHigh:     2,
		detection.SeverityMedium:   1,
		detection.SeverityLow:      0,
	}
	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0; j-- {
			a, b := patterns[j-1], patterns[j]
			less := rank[a.Severity] < rank[b.Severity] ||
				(rank[a.Severity] == rank[b.Severity] && a.Confidence < b.Confidence)
			if !less {
				break
			}
			patterns[j-1], patterns[j] = patterns[j], patterns[j-1]
		}
	}
}
