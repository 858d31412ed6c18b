package api

import (
	"encoding/json"
	"net/http"

	svcerrors "github.com/shadowtrace/discovery-platform/internal/platform/errors"
)

// envelope is the stable success/error JSON shape every handler returns,
// grounded on the teacher gateway's jsonError helper generalized to also
// cover the success path.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// respondError maps err into the stable error envelope via the platform's
// ServiceError taxonomy, falling back to 500/INTERNAL for anything that
// isn't already tagged.
func respondError(w http.ResponseWriter, err error) {
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = svcerrors.Internal("unexpected error", err)
	}
	writeJSON(w, svcErr.HTTPStatus, envelope{
		Success: false,
		Error:   string(svcErr.Code),
		Message: svcErr.Message,
		Details: svcErr.Details,
	})
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
