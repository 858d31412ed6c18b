package discoveryengine

import "context"

// DetectorRunner is the Detector Set's entry point as seen by the engine
// (§4.4 step 7: "invoke Detector Set on affected automations"). Errors
// returned here are per-detector warnings already aggregated by the
// implementation (internal/detectors), not a whole-run abort signal.
type DetectorRunner interface {
	RunAll(ctx context.Context, organizationID string, automationIDs []string) (warnings []string, err error)
}

// Correlator is the Cross-Platform Correlator's entry point (§4.4 step 7,
// §4.8).
type Correlator interface {
	Correlate(ctx context.Context, organizationID string, automationIDs []string) error
}
