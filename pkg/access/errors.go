// Package access defines the error taxonomy shared by every enforcement stage.
//
// Each verdict carries a Kind (which stage family produced it), a stable machine
// Code, the HTTP status the transport should use, and structured Details so a
// caller can render an actionable prompt. Infrastructure failures are always
// KindInternal and never share a code with a policy denial.
package access

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an access error.
type Kind string

const (
	KindAuthentication   Kind = "authentication"
	KindTenantResolution Kind = "tenant_resolution"
	KindAuthorization    Kind = "authorization"
	KindBillingState     Kind = "billing_state"
	KindInternal         Kind = "internal"
)

// Machine codes returned to clients.
const (
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTenantRequired          = "TENANT_REQUIRED"
	CodeTenantNotFound          = "TENANT_NOT_FOUND"
	CodeTenantSuspended         = "TENANT_SUSPENDED"
	CodeTenantCanceled          = "TENANT_CANCELED"
	CodePaymentRequired         = "PAYMENT_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeFeatureNotAvailable     = "FEATURE_NOT_AVAILABLE"
	CodeLimitExceeded           = "LIMIT_EXCEEDED"
	CodeInternal                = "INTERNAL_ERROR"
)

// Reasons distinguish denials that share a machine code.
const (
	ReasonNoMembership    = "no_membership"
	ReasonTenantMismatch  = "tenant_mismatch"
	ReasonNotFound        = "not_found"
	ReasonAmbiguous       = "ambiguous_membership"
	ReasonSuperAdmin      = "super_admin_requires_assumed_tenant"
	ReasonNotPermitted    = "not_permitted"
	ReasonOverrideRevoked = "override_revoked"
	ReasonOutOfScope      = "out_of_scope"
	ReasonStaffType       = "staff_type_mismatch"
	ReasonTrialExpired    = "trial_expired"
	ReasonSuperAdminOnly  = "super_admin_required"
	ReasonNotRenewable    = "escalation_not_renewable"
)

// Sentinel errors. Every *Error unwraps to exactly one of these so callers can
// branch with errors.Is without inspecting codes.
var (
	ErrMissingCredential  = errors.New("credential required")
	ErrInvalidCredential  = errors.New("invalid credential")
	ErrExpiredCredential  = errors.New("credential expired")
	ErrTenantRequired     = errors.New("tenant required")
	ErrNoTenantForUser    = errors.New("no tenant for user")
	ErrTenantMismatch     = errors.New("tenant mismatch")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantSuspended    = errors.New("tenant suspended")
	ErrTenantCanceled     = errors.New("tenant canceled")
	ErrPaymentRequired    = errors.New("payment required")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrOutOfScope         = errors.New("resource out of scope")
	ErrFeatureUnavailable = errors.New("feature not available")
	ErrLimitExceeded      = errors.New("usage limit exceeded")
	ErrInternal           = errors.New("internal error")
)

// Error is a classified access verdict.
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	Reason  string
	Details map[string]interface{}

	sentinel error
	cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.sentinel != nil {
		errs = append(errs, e.sentinel)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Cause returns the wrapped underlying error, if any.
func (e *Error) Cause() error {
	return e.cause
}

// IsDenial reports whether the error is a policy verdict rather than an
// infrastructure failure.
func (e *Error) IsDenial() bool {
	return e.Kind != KindInternal
}

func newError(kind Kind, code string, status int, sentinel error, message string) *Error {
	return &Error{
		Kind:     kind,
		Code:     code,
		Status:   status,
		Message:  message,
		sentinel: sentinel,
	}
}

// MissingCredential is returned when no bearer credential was presented.
func MissingCredential() *Error {
	return newError(KindAuthentication, CodeAuthRequired, http.StatusUnauthorized, ErrMissingCredential,
		"authentication required")
}

// InvalidCredential is returned for malformed, unsigned or unverifiable credentials.
func InvalidCredential(cause error) *Error {
	e := newError(KindAuthentication, CodeInvalidToken, http.StatusUnauthorized, ErrInvalidCredential,
		"invalid access token")
	e.cause = cause
	return e
}

// ExpiredCredential is returned when the credential's expiry has passed.
func ExpiredCredential() *Error {
	return newError(KindAuthentication, CodeTokenExpired, http.StatusUnauthorized, ErrExpiredCredential,
		"access token has expired")
}

// TenantRequired is returned when the request cannot be pinned to one tenant.
func TenantRequired(reason string) *Error {
	e := newError(KindTenantResolution, CodeTenantRequired, http.StatusBadRequest, ErrTenantRequired,
		"a tenant must be selected for this request")
	e.Reason = reason
	return e
}

// NoTenantForUser is returned when the caller has no active membership.
func NoTenantForUser(userID string) *Error {
	e := newError(KindTenantResolution, CodeTenantNotFound, http.StatusForbidden, ErrNoTenantForUser,
		"user does not belong to any tenant")
	e.Reason = ReasonNoMembership
	e.Details = map[string]interface{}{"userId": userID}
	return e
}

// TenantMismatch is returned when the addressed tenant differs from the caller's membership.
func TenantMismatch(slug string) *Error {
	e := newError(KindTenantResolution, CodeTenantNotFound, http.StatusForbidden, ErrTenantMismatch,
		"tenant does not match caller membership")
	e.Reason = ReasonTenantMismatch
	e.Details = map[string]interface{}{"tenantSlug": slug}
	return e
}

// TenantNotFound is returned when the resolved tenant record does not exist.
func TenantNotFound(tenantID string) *Error {
	e := newError(KindTenantResolution, CodeTenantNotFound, http.StatusForbidden, ErrTenantNotFound,
		"tenant not found")
	e.Reason = ReasonNotFound
	e.Details = map[string]interface{}{"tenantId": tenantID}
	return e
}

// TenantSuspended is returned for suspended tenants.
func TenantSuspended(tenantID string) *Error {
	e := newError(KindTenantResolution, CodeTenantSuspended, http.StatusForbidden, ErrTenantSuspended,
		"tenant account is suspended")
	e.Details = map[string]interface{}{"tenantId": tenantID}
	return e
}

// TenantCanceled is returned for canceled tenants outside billing routes.
func TenantCanceled(tenantID string) *Error {
	e := newError(KindBillingState, CodeTenantCanceled, http.StatusForbidden, ErrTenantCanceled,
		"tenant subscription is canceled")
	e.Details = map[string]interface{}{"tenantId": tenantID}
	return e
}

// PaymentRequired is returned for writes by past-due tenants outside billing routes.
func PaymentRequired(tenantID, reason string) *Error {
	e := newError(KindBillingState, CodePaymentRequired, http.StatusPaymentRequired, ErrPaymentRequired,
		"payment is past due; account is read-only")
	e.Reason = reason
	e.Details = map[string]interface{}{"tenantId": tenantID}
	return e
}

// PermissionDenied is returned when the role cannot perform the permission.
func PermissionDenied(permission, reason string) *Error {
	e := newError(KindAuthorization, CodeInsufficientPermissions, http.StatusForbidden, ErrPermissionDenied,
		"insufficient permissions")
	e.Reason = reason
	e.Details = map[string]interface{}{"requiredPermission": permission}
	return e
}

// OutOfScope is returned when a grant exists but the resource lies outside the
// caller's venue or staff-type scope.
func OutOfScope(permission, reason string) *Error {
	e := newError(KindAuthorization, CodeInsufficientPermissions, http.StatusForbidden, ErrOutOfScope,
		"resource is outside of your assigned scope")
	e.Reason = reason
	e.Details = map[string]interface{}{"requiredPermission": permission}
	return e
}

// FeatureUnavailable is returned when the tenant's plan lacks a feature.
func FeatureUnavailable(featureID, featureName string) *Error {
	e := newError(KindAuthorization, CodeFeatureNotAvailable, http.StatusForbidden, ErrFeatureUnavailable,
		fmt.Sprintf("%s is not available on your current plan", featureName))
	e.Details = map[string]interface{}{
		"featureId":       featureID,
		"featureName":     featureName,
		"upgradeRequired": true,
	}
	return e
}

// LimitExceeded is returned when a live count has reached the plan ceiling.
func LimitExceeded(limitType string, current, max int64) *Error {
	e := newError(KindAuthorization, CodeLimitExceeded, http.StatusPaymentRequired, ErrLimitExceeded,
		fmt.Sprintf("plan limit reached for %s", limitType))
	e.Details = map[string]interface{}{
		"limitType":       limitType,
		"current":         current,
		"max":             max,
		"upgradeRequired": true,
	}
	return e
}

// Internal wraps an infrastructure failure.
func Internal(message string, cause error) *Error {
	e := newError(KindInternal, CodeInternal, http.StatusInternalServerError, ErrInternal, message)
	e.cause = cause
	return e
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var accessErr *Error
	if errors.As(err, &accessErr) {
		return accessErr, true
	}
	return nil, false
}

// FromError converts any error into an *Error. Errors that are not already
// classified become internal errors.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if accessErr, ok := As(err); ok {
		return accessErr
	}
	return Internal("internal error", err)
}
