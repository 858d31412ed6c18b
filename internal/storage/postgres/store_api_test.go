package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/shadowtrace/discovery-platform/internal/api"
)

func automationRowColumns() []string {
	return []string{
		"id", "organization_id", "connection_id", "discovery_run_id", "external_id", "name", "kind",
		"owner_identity", "metadata", "first_seen_at", "last_seen_at",
		"platform", "score", "level", "has_risk",
	}
}

func TestListAutomationsReturnsNextCursorWhenMoreRowsExist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT a.id, a.organization_id, a.connection_id`).
		WithArgs("org1", "", 2).
		WillReturnRows(sqlmock.NewRows(automationRowColumns()).
			AddRow("a1", "org1", "c1", "r1", "ext1", "bot-1", "bot", "owner@example.com", []byte(`{}`), now, now, "slack", 80, "high", true).
			AddRow("a2", "org1", "c1", "r1", "ext2", "bot-2", "bot", "", []byte(`{}`), now, now, "slack", 0, "", false))

	rows, nextCursor, err := store.ListAutomations(context.Background(), "org1", api.ListAutomationsOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a1", nextCursor)
	require.Equal(t, "high", string(rows[0].RiskLevel))
	require.True(t, rows[0].HasRisk)
}

func TestGetAutomationDetailIncludesDetections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT a.id, a.organization_id, a.connection_id`).
		WithArgs("org1", "a1").
		WillReturnRows(sqlmock.NewRows(automationRowColumns()).
			AddRow("a1", "org1", "c1", "r1", "ext1", "bot-1", "bot", "", []byte(`{}`), now, now, "slack", 50, "medium", true))
	mock.ExpectQuery(`SELECT id, organization_id, automation_id, type, severity, confidence, evidence, detected_at`).
		WithArgs("org1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "automation_id", "type", "severity", "confidence", "evidence", "detected_at"}).
			AddRow("p1", "org1", "a1", "velocity_anomaly", "medium", 0.8, []byte(`{}`), now))

	detail, err := store.GetAutomationDetail(context.Background(), "org1", "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", detail.Automation.ID)
	require.Len(t, detail.Detections, 1)
	require.Equal(t, "velocity_anomaly", string(detail.Detections[0].Type))
}
