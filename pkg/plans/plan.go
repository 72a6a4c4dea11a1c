package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/access"
)

// ErrPlanNotFound is returned by sources when a plan id is unknown
var ErrPlanNotFound = errors.New("plan not found")

// Plan is a subscription package: a feature set and a limit set.
// Plans are immutable once loaded; a tenant changes plan by changing its plan id.
type Plan struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	DisplayName string                 `json:"display_name" yaml:"display_name"`
	Active      bool                   `json:"active" yaml:"active"`
	Features    FeatureSet             `json:"features" yaml:"features"`
	Limits      LimitSet               `json:"limits" yaml:"limits"`
	Pricing     map[string]interface{} `json:"pricing,omitempty" yaml:"pricing,omitempty"`
}

// Validate checks ids and limits
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("plan id is required")
	}
	if err := p.Limits.Validate(); err != nil {
		return fmt.Errorf("plan %s: %w", p.ID, err)
	}
	return nil
}

// DefaultFeatures is available to every tenant whose plan is missing or inactive
var DefaultFeatures = NewFeatureSet(
	FeatureDashboard,
	FeatureCustomerManagement,
	FeaturePaymentProcessing,
	FeatureCoreBooking,
)

// DefaultLimits applies when a tenant's plan is missing or inactive
var DefaultLimits = LimitSet{
	LimitMaxUsers:            1,
	LimitMaxVenues:           1,
	LimitMaxBookingsPerMonth: 25,
	LimitMaxSpacesPerVenue:   1,
}

// EffectiveFeatures returns the plan's features, or the defaults when the
// plan is missing or inactive.
func EffectiveFeatures(p *Plan) FeatureSet {
	if p == nil || !p.Active {
		return DefaultFeatures
	}
	return p.Features
}

// EffectiveLimits returns the plan's limits, or the defaults when the plan
// is missing or inactive.
func EffectiveLimits(p *Plan) LimitSet {
	if p == nil || !p.Active {
		return DefaultLimits
	}
	return p.Limits
}

// HasFeature reports whether the plan grants id
func HasFeature(p *Plan, id FeatureID) bool {
	return EffectiveFeatures(p).Has(id)
}

// Gate enforces plan features
type Gate struct{}

// NewGate creates a feature gate
func NewGate() *Gate {
	return &Gate{}
}

// Check returns FeatureUnavailable unless the plan grants id. Super admins
// bypass the gate.
func (g *Gate) Check(p *Plan, id FeatureID, superAdmin bool) error {
	if superAdmin {
		return nil
	}
	if HasFeature(p, id) {
		return nil
	}
	return access.FeatureUnavailable(string(id), id.Name())
}

// Features returns the verdict for every known feature
func (g *Gate) Features(p *Plan, superAdmin bool) map[FeatureID]bool {
	if superAdmin {
		return Everything().Map()
	}
	return EffectiveFeatures(p).Map()
}

// Source loads plans by id
type Source interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
}

// Resolve loads the plan for a tenant's plan id. An empty id or a plan that
// no longer exists yields nil (defaults apply); any other error is internal.
func Resolve(ctx context.Context, src Source, planID string) (*Plan, error) {
	if planID == "" {
		return nil, nil
	}
	p, err := src.GetPlan(ctx, planID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, access.Internal("failed to load plan", err)
	}
	return p, nil
}
