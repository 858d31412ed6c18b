package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/shadowtrace/discovery-platform/internal/domain/feedback"
)

// CreateFeedback persists an analyst's disposition, the reinforcement
// signal baselinesvc.Service.AdjustThresholds consumes (§4.7).
func (s *Store) CreateFeedback(ctx context.Context, fb feedback.AutomationFeedback) (feedback.AutomationFeedback, error) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	fb.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_feedback (id, organization_id, automation_id, user_id, disposition, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, fb.ID, fb.OrganizationID, fb.AutomationID, fb.UserID, fb.Disposition, toNullString(fb.Notes), fb.CreatedAt)
	if err != nil {
		return feedback.AutomationFeedback{}, err
	}
	return fb, nil
}

func (s *Store) ListFeedbackForAutomation(ctx context.Context, organizationID, automationID string) ([]feedback.AutomationFeedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, automation_id, user_id, disposition, notes, created_at
		FROM automation_feedback
		WHERE organization_id = $1 AND automation_id = $2
		ORDER BY created_at DESC
	`, organizationID, automationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []feedback.AutomationFeedback
	for rows.Next() {
		var fb feedback.AutomationFeedback
		var notes sql.NullString
		if err := rows.Scan(&fb.ID, &fb.OrganizationID, &fb.AutomationID, &fb.UserID, &fb.Disposition, &notes, &fb.CreatedAt); err != nil {
			return nil, err
		}
		fb.Notes = fromNullString(notes)
		out = append(out, fb)
	}
	return out, rows.Err()
}
