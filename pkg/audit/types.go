package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names the enforcement stage that produced a decision
type Stage string

const (
	StageAuthenticate Stage = "authenticate"
	StageTenant       Stage = "tenant"
	StageStatus       Stage = "status"
	StageFeature      Stage = "feature"
	StagePermission   Stage = "permission"
	StageLimit        Stage = "limit"
	StageEscalation   Stage = "escalation"
)

// Verdict is the outcome of a decision
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
	VerdictError Verdict = "error"
)

// Decision is a structured record of one access decision
type Decision struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	RequestID    string                 `json:"request_id,omitempty"`
	SubjectID    string                 `json:"subject_id,omitempty"`
	TenantID     string                 `json:"tenant_id,omitempty"`
	EscalationID string                 `json:"escalation_id,omitempty"`
	Stage        Stage                  `json:"stage"`
	Resource     string                 `json:"resource,omitempty"`
	Action       string                 `json:"action,omitempty"`
	Method       string                 `json:"method,omitempty"`
	Verdict      Verdict                `json:"verdict"`
	Code         string                 `json:"code,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// Consequential reports whether d is worth keeping: every denial and error,
// every escalation event, and one status-stage allow per mutating request made
// under an escalation.
func (d Decision) Consequential() bool {
	switch {
	case d.Verdict != VerdictAllow, d.Stage == StageEscalation:
		return true
	case d.EscalationID != "" && d.Stage == StageStatus:
		return IsMutation(d.Method)
	}
	return false
}

// IsMutation reports whether an HTTP method can change state
func IsMutation(method string) bool {
	switch strings.ToUpper(method) {
	case "", "GET", "HEAD", "OPTIONS":
		return false
	}
	return true
}

// Sink receives access decisions
type Sink interface {
	Record(ctx context.Context, d Decision) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, d Decision) error

// Record calls f
func (f SinkFunc) Record(ctx context.Context, d Decision) error {
	return f(ctx, d)
}

// NopSink discards every decision
type NopSink struct{}

// Record does nothing
func (NopSink) Record(context.Context, Decision) error { return nil }

// stamp fills in the id and timestamp when missing
func stamp(d *Decision, now func() time.Time) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = now().UTC()
	}
}
