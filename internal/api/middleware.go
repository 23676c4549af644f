package api

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the version of the response envelope.
const EnvelopeVersion = 1

// APIEnvelope wraps every successful response body.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIErrorEnvelope wraps coded error responses.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps response bodies in the versioned envelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	switch body := v.(type) {
	case *APIError:
		return APIErrorEnvelope{
			Version: EnvelopeVersion,
			Code:    body.Code,
			Message: body.Message,
			Details: body.Details,
		}, nil
	case error:
		return APIEnvelope{Version: EnvelopeVersion, Error: body.Error()}, nil
	}

	if len(status) > 0 && status[0] != '2' {
		return APIEnvelope{Version: EnvelopeVersion, Data: v}, nil
	}
	return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
}

// writeError writes an error envelope outside of huma, for router-level
// middleware.
func writeError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(APIErrorEnvelope{
		Version: EnvelopeVersion,
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	})
}
