// Package discovery models discovery run execution and the automations it
// surfaces (SPEC_FULL §3, §4.4).
package discovery

import "time"

// RunStatus is a DiscoveryRun's lifecycle stage.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Trigger identifies what caused a DiscoveryRun (§4.4's manual/periodic split).
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerPeriodic Trigger = "periodic"
)

// DiscoveryRun is one execution of the Discovery Engine against a
// connection (I3: at most one non-terminal run per connection).
type DiscoveryRun struct {
	ID                 string     `json:"id" db:"id"`
	OrganizationID     string     `json:"organizationId" db:"organization_id"`
	ConnectionID       string     `json:"connectionId" db:"connection_id"`
	Trigger            Trigger    `json:"trigger" db:"trigger"`
	Status             RunStatus  `json:"status" db:"status"`
	AutomationsFound   int        `json:"automationsFound" db:"automations_found"`
	ErrorMessage       string     `json:"errorMessage,omitempty" db:"error_message"`
	StartedAt          time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt        *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// AutomationKind is the category of automation surfaced by a platform adapter.
type AutomationKind string

const (
	AutomationKindWorkflow   AutomationKind = "workflow"
	AutomationKindBot        AutomationKind = "bot"
	AutomationKindScheduled  AutomationKind = "scheduled_task"
	AutomationKindWebhook    AutomationKind = "webhook"
	AutomationKindAIAgent    AutomationKind = "ai_agent"
)

// DiscoveredAutomation is one automation found by a discovery run, carrying
// the evidence used downstream by detectors (§4.6).
type DiscoveredAutomation struct {
	ID               string         `json:"id" db:"id"`
	OrganizationID   string         `json:"organizationId" db:"organization_id"`
	ConnectionID     string         `json:"connectionId" db:"connection_id"`
	DiscoveryRunID   string         `json:"discoveryRunId" db:"discovery_run_id"`
	ExternalID       string         `json:"externalId" db:"external_id"`
	Name             string         `json:"name" db:"name"`
	Kind             AutomationKind `json:"kind" db:"kind"`
	OwnerIdentity    string         `json:"ownerIdentity,omitempty" db:"owner_identity"`
	Metadata         map[string]any `json:"metadata,omitempty" db:"metadata"`
	FirstSeenAt      time.Time      `json:"firstSeenAt" db:"first_seen_at"`
	LastSeenAt       time.Time      `json:"lastSeenAt" db:"last_seen_at"`
}
