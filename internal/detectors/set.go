package detectors

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shadowtrace/discovery-platform/internal/domain/detection"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/system"
)

// Set runs all eleven detectors against each affected automation and
// persists the resulting DetectionPatterns and RiskAssessment. It satisfies
// discoveryengine.DetectorRunner.
type Set struct {
	store      Store
	detectors  []Detector // declaration order, §4.6's tie-break/append rule
	scorer     *RiskScorer
	log        *logging.Logger
	workerCap  int
}

// New constructs a Set with the standard eleven-detector roster (qualitative
// validator included with a nil client, i.e. permanently inert, unless a
// client is supplied via WithQualitativeClient).
func New(store Store, log *logging.Logger) *Set {
	return &Set{
		store: store,
		log:   log,
		detectors: []Detector{
			NewVelocityDetector(),
			NewBatchOperationDetector(),
			NewOffHoursDetector(),
			NewTimingVarianceDetector(),
			NewPermissionEscalationDetector(),
			NewDataVolumeDetector(),
			NewAIProviderDetector(),
			NewMLBehavioralDetector(),
			NewQualitativeValidator(nil),
			NewCrossActorDetector(),
		},
		scorer:    NewRiskScorer(),
		workerCap: system.ClampLimit(runtime.GOMAXPROCS(0), 4, 11),
	}
}

// WithQualitativeClient swaps in a live client for the qualitative
// validator, enabling detector #10 instead of leaving it permanently inert.
func (s *Set) WithQualitativeClient(client QualitativeClient) *Set {
	for i, d := range s.detectors {
		if _, ok := d.(*QualitativeValidator); ok {
			s.detectors[i] = NewQualitativeValidator(client)
		}
	}
	return s
}

// RunAll evaluates every automation in automationIDs against all registered
// detectors, then scores and persists a RiskAssessment for each. Per-
// detector and per-automation failures are isolated into the returned
// warning list; RunAll never aborts on them (§4.6's failure semantics).
func (s *Set) RunAll(ctx context.Context, organizationID string, automationIDs []string) ([]string, error) {
	org, err := s.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}

	var warnings []string
	var warningsMu sync.Mutex
	addWarning := func(format string, args ...any) {
		warningsMu.Lock()
		warnings = append(warnings, fmt.Sprintf(format, args...))
		warningsMu.Unlock()
	}

	for _, automationID := range automationIDs {
		in, err := s.loadInput(ctx, org.ID, automationID)
		if err != nil {
			addWarning("detectors: load input for automation %s failed: %v", automationID, err)
			continue
		}
		in.Organization = org

		patterns, runErr := s.runDetectors(ctx, in)
		if runErr != nil {
			if merr, ok := runErr.(*multierror.Error); ok {
				for _, e := range merr.Errors {
					addWarning("detectors: automation %s: %v", automationID, e)
				}
			} else {
				addWarning("detectors: automation %s: %v", automationID, runErr)
			}
		}

		if len(patterns) > 0 {
			if err := s.store.SavePatterns(ctx, patterns); err != nil {
				addWarning("detectors: save patterns for automation %s failed: %v", automationID, err)
			}
		}

		assessment := s.scorer.Score(in, patterns)
		if err := s.store.SaveRiskAssessment(ctx, assessment); err != nil {
			addWarning("detectors: save risk assessment for automation %s failed: %v", automationID, err)
		}
	}

	return warnings, nil
}

func (s *Set) loadInput(ctx context.Context, organizationID, automationID string) (Input, error) {
	automation, err := s.store.GetAutomation(ctx, organizationID, automationID)
	if err != nil {
		return Input{}, fmt.Errorf("get automation: %w", err)
	}
	bl, err := s.store.GetBaseline(ctx, organizationID, automationID)
	if err != nil {
		return Input{}, fmt.Errorf("get baseline: %w", err)
	}
	history, err := s.store.GetHistory(ctx, organizationID, automationID, time.Now().Add(-HistoryLookback))
	if err != nil {
		return Input{}, fmt.Errorf("get history: %w", err)
	}
	existing, err := s.store.GetExistingPatterns(ctx, organizationID, automationID)
	if err != nil {
		return Input{}, fmt.Errorf("get existing patterns: %w", err)
	}
	return Input{Automation: automation, Baseline: bl, History: history, ExistingPatterns: existing}, nil
}

// runDetectors fans the roster out across a worker pool bounded to
// GOMAXPROCS (§4.6.bis), then reassembles results in declaration order
// regardless of completion order so the append order stays deterministic.
func (s *Set) runDetectors(ctx context.Context, in Input) ([]detection.DetectionPattern, error) {
	results := make([][]detection.DetectionPattern, len(s.detectors))
	errs := make([]error, len(s.detectors))

	sem := make(chan struct{}, s.workerCap)
	var wg sync.WaitGroup
	for i, det := range s.detectors {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, det Detector) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s detector panicked: %v", det.Type(), r)
				}
			}()
			patterns, err := det.Detect(ctx, in)
			results[i] = patterns
			errs[i] = err
		}(i, det)
	}
	wg.Wait()

	var combinedErr *multierror.Error
	var patterns []detection.DetectionPattern
	for i := range s.detectors {
		if errs[i] != nil {
			combinedErr = multierror.Append(combinedErr, errs[i])
			if s.log != nil {
				s.log.Warn(ctx, "detector failed", map[string]interface{}{
					"detector": string(s.detectors[i].Type()), "automation_id": in.Automation.ID, "error": errs[i].Error(),
				})
			}
			continue
		}
		patterns = append(patterns, results[i]...)
	}
	return patterns, combinedErr.ErrorOrNil()
}
