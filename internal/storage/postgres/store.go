// Package postgres implements every storage contract the service layer
// depends on (connmgr.Store, discoveryengine.Store, detectors.Store,
// baselinesvc.Store, correlator.Store, analytics.Store, api.Store) against a
// single PostgreSQL handle, split one file per domain the way the teacher's
// storage/postgres package does (store.go + store_<domain>.go).
package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shadowtrace/discovery-platform/internal/analytics"
	"github.com/shadowtrace/discovery-platform/internal/api"
	"github.com/shadowtrace/discovery-platform/internal/baselinesvc"
	"github.com/shadowtrace/discovery-platform/internal/connmgr"
	"github.com/shadowtrace/discovery-platform/internal/correlator"
	"github.com/shadowtrace/discovery-platform/internal/detectors"
	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ connmgr.Store = (*Store)(nil)
var _ discoveryengine.Store = (*Store)(nil)
var _ detectors.Store = (*Store)(nil)
var _ baselinesvc.Store = (*Store)(nil)
var _ correlator.Store = (*Store)(nil)
var _ analytics.Store = (*Store)(nil)
var _ api.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func fromNullString(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON[T any](raw []byte, out *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func marshalStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
