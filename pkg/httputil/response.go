// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/access"
)

// ErrorBody is the envelope every error response uses. Access denials add
// their details as extra top level keys.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// StatusCode derives an error code from an HTTP status, e.g. 404 becomes
// NOT_FOUND.
func StatusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}

// WriteErrorMessage writes the error envelope with a code derived from status
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: StatusCode(status), Message: message})
}

// WriteBadRequest writes a 400 error envelope
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFoundError writes a 404 error envelope
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteSuccess writes data with 200 OK
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes data with 201 Created
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes 204 No Content
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteAccessError renders err as the access-error envelope:
//
//	{"error": "FEATURE_NOT_AVAILABLE", "message": "...", "featureId": "...", ...}
//
// Details are merged into the top level object. Internal errors are rendered
// as INTERNAL_ERROR with a fixed message and no details. Access responses are
// never cacheable.
func WriteAccessError(w http.ResponseWriter, err error) {
	accessErr := access.FromError(err)
	if accessErr == nil {
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	if accessErr.Kind == access.KindInternal {
		WriteJSON(w, accessErr.Status, ErrorBody{Error: accessErr.Code, Message: "internal server error"})
		return
	}

	body := make(map[string]interface{}, len(accessErr.Details)+3)
	for k, v := range accessErr.Details {
		body[k] = v
	}
	body["error"] = accessErr.Code
	body["message"] = accessErr.Message
	if accessErr.Reason != "" {
		body["reason"] = accessErr.Reason
	}
	WriteJSON(w, accessErr.Status, body)
}
