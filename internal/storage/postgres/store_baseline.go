package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/baselinesvc"
	"github.com/shadowtrace/discovery-platform/internal/domain/baseline"
)

// LoadBaseline satisfies baselinesvc.Store. A nil, nil return means no
// baseline exists yet, the cold-start case baselinesvc.Apply handles.
func (s *Store) LoadBaseline(ctx context.Context, organizationID, automationID string) (*baseline.BehavioralBaseline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, automation_id, mean_events_per_hour, stddev_events_per_hour, active_hours_histogram,
			sample_count, sample_since_days, confidence, last_adapted_at
		FROM behavioral_baselines
		WHERE organization_id = $1 AND automation_id = $2
	`, organizationID, automationID)

	var b baseline.BehavioralBaseline
	var histogramJSON []byte
	err := row.Scan(&b.ID, &b.OrganizationID, &b.AutomationID, &b.MeanEventsPerHour, &b.StdDevEventsPerHour, &histogramJSON,
		&b.SampleCount, &b.SampleSinceDays, &b.Confidence, &b.LastAdaptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var histogram []float64
	if err := unmarshalJSON(histogramJSON, &histogram); err != nil {
		return nil, err
	}
	copy(b.ActiveHoursHistogram[:], histogram)
	return &b, nil
}

// SaveBaseline satisfies baselinesvc.Store, upserting the single current
// baseline per automation.
func (s *Store) SaveBaseline(ctx context.Context, b baseline.BehavioralBaseline) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.LastAdaptedAt.IsZero() {
		b.LastAdaptedAt = time.Now().UTC()
	}
	histogramJSON, err := marshalJSON(b.ActiveHoursHistogram[:])
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO behavioral_baselines
			(id, organization_id, automation_id, mean_events_per_hour, stddev_events_per_hour, active_hours_histogram,
			 sample_count, sample_since_days, confidence, last_adapted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (automation_id) DO UPDATE SET
			mean_events_per_hour = EXCLUDED.mean_events_per_hour,
			stddev_events_per_hour = EXCLUDED.stddev_events_per_hour,
			active_hours_histogram = EXCLUDED.active_hours_histogram,
			sample_count = EXCLUDED.sample_count,
			sample_since_days = EXCLUDED.sample_since_days,
			confidence = EXCLUDED.confidence,
			last_adapted_at = EXCLUDED.last_adapted_at
	`, b.ID, b.OrganizationID, b.AutomationID, b.MeanEventsPerHour, b.StdDevEventsPerHour, histogramJSON,
		b.SampleCount, b.SampleSinceDays, b.Confidence, b.LastAdaptedAt)
	return err
}

// LoadThresholds satisfies baselinesvc.Store, falling back to the global
// defaults for an organization that has never received tuning feedback.
func (s *Store) LoadThresholds(ctx context.Context, organizationID string) (baselinesvc.DetectorThresholds, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT velocity_z_score, batch_min_count, data_volume_factor, timing_variance_max
		FROM detector_thresholds WHERE organization_id = $1
	`, organizationID)

	var t baselinesvc.DetectorThresholds
	err := row.Scan(&t.VelocityZScore, &t.BatchMinCount, &t.DataVolumeFactor, &t.TimingVarianceMax)
	if errors.Is(err, sql.ErrNoRows) {
		return baselinesvc.DefaultDetectorThresholds(), nil
	}
	if err != nil {
		return baselinesvc.DetectorThresholds{}, err
	}
	return t, nil
}

// SaveThresholds satisfies baselinesvc.Store.
func (s *Store) SaveThresholds(ctx context.Context, organizationID string, thresholds baselinesvc.DetectorThresholds) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detector_thresholds (organization_id, velocity_z_score, batch_min_count, data_volume_factor, timing_variance_max, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (organization_id) DO UPDATE SET
			velocity_z_score = EXCLUDED.velocity_z_score,
			batch_min_count = EXCLUDED.batch_min_count,
			data_volume_factor = EXCLUDED.data_volume_factor,
			timing_variance_max = EXCLUDED.timing_variance_max,
			updated_at = EXCLUDED.updated_at
	`, organizationID, thresholds.VelocityZScore, thresholds.BatchMinCount, thresholds.DataVolumeFactor, thresholds.TimingVarianceMax)
	return err
}

// RecentObservations satisfies baselinesvc.Store, translating activity
// samples into the rate/scope shape Apply's EMA blend consumes.
func (s *Store) RecentObservations(ctx context.Context, organizationID, automationID string, minSampleSize int) ([]baselinesvc.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT observed_at, event_count, scopes
		FROM automation_activity_samples
		WHERE organization_id = $1 AND automation_id = $2
		ORDER BY observed_at DESC
		LIMIT $3
	`, organizationID, automationID, minSampleSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []baselinesvc.Observation
	for rows.Next() {
		var obs baselinesvc.Observation
		var eventCount int
		var scopesJSON []byte
		if err := rows.Scan(&obs.Timestamp, &eventCount, &scopesJSON); err != nil {
			return nil, err
		}
		obs.EventsPerHour = float64(eventCount)
		scopes, err := unmarshalStrings(scopesJSON)
		if err != nil {
			return nil, err
		}
		obs.Scopes = scopes
		out = append(out, obs)
	}
	// Oldest first, matching the chronological order Apply's histogram and
	// cold-start day-span calculation assume.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}
