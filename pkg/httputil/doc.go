// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//
// Access verdicts:
//
//	if err := gate.Check(plan, plans.FeatureProposalSystem, false); err != nil {
//		httputil.WriteAccessError(w, err)
//		return
//	}
//
// WriteAccessError maps an *access.Error to its HTTP status and machine code and
// merges the structured details (featureId, limitType, requiredPermission) into
// the response body. Any other error is rendered as a 500 INTERNAL_ERROR.
// Every error body, including WriteBadRequest and WriteErrorMessage, shares
// the {"error": CODE, "message": ...} envelope.
//
// # Request Parsing
//
//	var req AssumeTenantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Bodies are capped at MaxBodyBytes and unknown fields are rejected.
//
//	limit, err := httputil.QueryPositiveInt(r, "limit", 100)
package httputil
