package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

func TestDecision_Consequential(t *testing.T) {
	assert.True(t, Decision{Verdict: VerdictDeny}.Consequential())
	assert.True(t, Decision{Verdict: VerdictError}.Consequential())
	assert.True(t, Decision{Verdict: VerdictAllow, Stage: StageEscalation}.Consequential())
	assert.False(t, Decision{Verdict: VerdictAllow, Stage: StagePermission}.Consequential())

	escalated := Decision{Verdict: VerdictAllow, EscalationID: "e1"}
	for _, stage := range []Stage{StageAuthenticate, StageTenant, StageFeature, StagePermission, StageLimit} {
		d := escalated
		d.Stage, d.Method = stage, "POST"
		assert.False(t, d.Consequential(), stage)
	}
	for method, keep := range map[string]bool{"POST": true, "delete": true, "PATCH": true, "GET": false, "HEAD": false} {
		d := escalated
		d.Stage, d.Method = StageStatus, method
		assert.Equal(t, keep, d.Consequential(), method)
	}
	assert.True(t, Decision{Verdict: VerdictDeny, EscalationID: "e1", Stage: StageFeature, Method: "GET"}.Consequential())
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("b failed")}
	c := &recordingSink{}

	err := NewMultiSink(a, b, c).Record(context.Background(), Decision{Verdict: VerdictDeny})
	assert.EqualError(t, err, "b failed")
	assert.Len(t, a.all(), 1)
	assert.Len(t, c.all(), 1)
	assert.Equal(t, a.all()[0].ID, c.all()[0].ID)
}

func TestFilterSink(t *testing.T) {
	next := &recordingSink{}
	sink := NewFilterSink(next, nil)
	ctx := context.Background()

	require.NoError(t, sink.Record(ctx, Decision{Verdict: VerdictAllow, Stage: StageFeature}))
	require.NoError(t, sink.Record(ctx, Decision{Verdict: VerdictDeny, Stage: StageFeature}))

	got := next.all()
	require.Len(t, got, 1)
	assert.Equal(t, VerdictDeny, got[0].Verdict)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)
	sink := NewLogSink(logger)

	require.NoError(t, sink.Record(context.Background(), Decision{
		Timestamp: time.Now(),
		Stage:     StageLimit,
		Verdict:   VerdictDeny,
		TenantID:  "t1",
		Code:      "LIMIT_EXCEEDED",
		Context:   map[string]interface{}{"limit": "maxVenues"},
	}))
	require.NoError(t, sink.Record(context.Background(), Decision{Stage: StageLimit, Verdict: VerdictAllow}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "allows log at debug")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "access denied", entry["msg"])
	assert.Equal(t, "t1", entry["tenant_id"])
	assert.Equal(t, "LIMIT_EXCEEDED", entry["code"])
	assert.Equal(t, "maxVenues", entry["ctx_limit"])
}
