// Package feedback models analyst dispositions on flagged automations, the
// reinforcement signal the Baseline & RL Module consumes (SPEC_FULL §3, §4.7).
package feedback

import "time"

// Disposition is an analyst's classification of a flagged automation.
type Disposition string

const (
	DispositionConfirmedThreat Disposition = "confirmed_threat"
	DispositionFalsePositive   Disposition = "false_positive"
	DispositionAcceptedRisk    Disposition = "accepted_risk"
	DispositionNeedsReview     Disposition = "needs_review"
)

// AutomationFeedback is one analyst's disposition on one automation.
type AutomationFeedback struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organizationId" db:"organization_id"`
	AutomationID   string      `json:"automationId" db:"automation_id"`
	UserID         string      `json:"userId" db:"user_id"`
	Disposition    Disposition `json:"disposition" db:"disposition"`
	Notes          string      `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
}
