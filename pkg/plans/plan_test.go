package plans

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/access"
)

func starterPlan() *Plan {
	return &Plan{
		ID:       "starter",
		Name:     "starter",
		Active:   true,
		Features: NewFeatureSet(FeatureDashboard),
		Limits:   LimitSet{LimitMaxVenues: 1, LimitMaxUsers: 3},
	}
}

func TestGate_StarterPlanLacksProposals(t *testing.T) {
	gate := NewGate()

	err := gate.Check(starterPlan(), FeatureProposalSystem, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, access.ErrFeatureUnavailable))

	accessErr, ok := access.As(err)
	require.True(t, ok)
	assert.Equal(t, 403, accessErr.Status)
	assert.Equal(t, access.CodeFeatureNotAvailable, accessErr.Code)
	assert.Equal(t, "proposal_system", accessErr.Details["featureId"])
	assert.Equal(t, "Proposal System", accessErr.Details["featureName"])
	assert.Equal(t, true, accessErr.Details["upgradeRequired"])

	assert.NoError(t, gate.Check(starterPlan(), FeatureDashboard, false))
}

func TestGate_Everything(t *testing.T) {
	plan := &Plan{ID: "enterprise", Active: true, Features: Everything()}

	for _, id := range AllFeatures {
		assert.True(t, HasFeature(plan, id), id)
	}
	assert.False(t, HasFeature(plan, FeatureID("not-a-real-feature")))
}

func TestGate_UnknownFeatureFailsClosed(t *testing.T) {
	plans := []*Plan{
		nil,
		starterPlan(),
		{ID: "all", Active: true, Features: Everything()},
	}
	for _, p := range plans {
		assert.False(t, HasFeature(p, FeatureID("not-a-real-feature")))
	}

	_, ok := ParseFeature("not-a-real-feature")
	assert.False(t, ok)
}

func TestGate_DefaultsForMissingOrInactivePlan(t *testing.T) {
	inactive := starterPlan()
	inactive.Active = false
	inactive.Features = Everything()

	for _, p := range []*Plan{nil, inactive} {
		assert.True(t, HasFeature(p, FeatureCoreBooking))
		assert.True(t, HasFeature(p, FeaturePaymentProcessing))
		assert.False(t, HasFeature(p, FeatureProposalSystem))
	}
	assert.Equal(t, DefaultLimits, EffectiveLimits(inactive))
}

func TestGate_SuperAdminBypass(t *testing.T) {
	gate := NewGate()
	assert.NoError(t, gate.Check(starterPlan(), FeatureProposalSystem, true))
	assert.NoError(t, gate.Check(nil, FeatureAPIAccess, true))

	features := gate.Features(starterPlan(), true)
	assert.True(t, features[FeatureAPIAccess])
}

func TestFeatureSet_JSON(t *testing.T) {
	var fs FeatureSet
	require.NoError(t, json.Unmarshal([]byte(`{"dashboard":true,"proposal_system":false,"teleport":true}`), &fs))

	assert.True(t, fs.Has(FeatureDashboard))
	assert.False(t, fs.Has(FeatureProposalSystem))
	assert.Equal(t, []string{"teleport"}, fs.Unknown)

	var wildcard FeatureSet
	require.NoError(t, json.Unmarshal([]byte(`{"everything":true}`), &wildcard))
	assert.True(t, wildcard.IsEverything())
	assert.True(t, wildcard.Has(FeatureCalendarSync))

	data, err := json.Marshal(wildcard)
	require.NoError(t, err)
	assert.JSONEq(t, `{"everything":true}`, string(data))
}

func TestLimitSet_Validate(t *testing.T) {
	assert.NoError(t, LimitSet{LimitMaxUsers: -1, LimitMaxVenues: 0}.Validate())
	assert.Error(t, LimitSet{LimitMaxUsers: -2}.Validate())
	assert.Error(t, LimitSet{"maxRockets": 1}.Validate())

	assert.Equal(t, int64(0), LimitSet{}.Max(LimitMaxVenues))
	assert.True(t, LimitMaxSpacesPerVenue.PerVenue())
	assert.False(t, LimitMaxVenues.PerVenue())
}

type stubSource struct {
	plan *Plan
	err  error
}

func (s stubSource) GetPlan(ctx context.Context, id string) (*Plan, error) {
	return s.plan, s.err
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	p, err := Resolve(ctx, stubSource{}, "")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = Resolve(ctx, stubSource{err: ErrPlanNotFound}, "gone")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = Resolve(ctx, stubSource{err: errors.New("connection refused")}, "starter")
	assert.True(t, errors.Is(err, access.ErrInternal))

	p, err = Resolve(ctx, stubSource{plan: starterPlan()}, "starter")
	require.NoError(t, err)
	assert.Equal(t, "starter", p.ID)
}
