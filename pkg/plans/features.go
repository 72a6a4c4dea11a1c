package plans

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeatureID identifies a plan-gated capability
type FeatureID string

const (
	FeatureDashboard          FeatureID = "dashboard"
	FeatureCustomerManagement FeatureID = "customer_management"
	FeaturePaymentProcessing  FeatureID = "payment_processing"
	FeatureCoreBooking        FeatureID = "core_booking"
	FeatureProposalSystem     FeatureID = "proposal_system"
	FeatureEventManagement    FeatureID = "event_management"
	FeatureTaskManagement     FeatureID = "task_management"
	FeatureAdvancedReporting  FeatureID = "advanced_reporting"
	FeatureMultiVenue         FeatureID = "multi_venue"
	FeatureEmailIntegration   FeatureID = "email_integration"
	FeatureCalendarSync       FeatureID = "calendar_sync"
	FeatureCustomBranding     FeatureID = "custom_branding"
	FeatureAPIAccess          FeatureID = "api_access"
)

// EverythingKey is the feature-map sentinel granting every known feature
const EverythingKey = "everything"

var featureNames = map[FeatureID]string{
	FeatureDashboard:          "Dashboard",
	FeatureCustomerManagement: "Customer Management",
	FeaturePaymentProcessing:  "Payment Processing",
	FeatureCoreBooking:        "Core Booking",
	FeatureProposalSystem:     "Proposal System",
	FeatureEventManagement:    "Event Management",
	FeatureTaskManagement:     "Task Management",
	FeatureAdvancedReporting:  "Advanced Reporting",
	FeatureMultiVenue:         "Multi-Venue",
	FeatureEmailIntegration:   "Email Integration",
	FeatureCalendarSync:       "Calendar Sync",
	FeatureCustomBranding:     "Custom Branding",
	FeatureAPIAccess:          "API Access",
}

// AllFeatures lists every known feature in a stable order
var AllFeatures = func() []FeatureID {
	ids := make([]FeatureID, 0, len(featureNames))
	for id := range featureNames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}()

// ParseFeature returns the feature for s. Unknown ids return false.
func ParseFeature(s string) (FeatureID, bool) {
	id := FeatureID(strings.TrimSpace(s))
	_, ok := featureNames[id]
	return id, ok
}

// Known reports whether f is a recognized feature
func (f FeatureID) Known() bool {
	_, ok := featureNames[f]
	return ok
}

// Name is the display name used in upgrade prompts
func (f FeatureID) Name() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return string(f)
}

// FeatureSet is a plan's feature flags. The zero value grants nothing.
type FeatureSet struct {
	everything bool
	flags      map[FeatureID]bool

	// Unknown holds keys that were dropped while decoding.
	Unknown []string
}

// NewFeatureSet builds a set that enables ids
func NewFeatureSet(ids ...FeatureID) FeatureSet {
	fs := FeatureSet{flags: make(map[FeatureID]bool, len(ids))}
	for _, id := range ids {
		if id.Known() {
			fs.flags[id] = true
		}
	}
	return fs
}

// Everything builds a set carrying the wildcard sentinel
func Everything() FeatureSet {
	return FeatureSet{everything: true}
}

// Has reports whether the set enables id. Unknown ids are never enabled.
func (fs FeatureSet) Has(id FeatureID) bool {
	if !id.Known() {
		return false
	}
	return fs.everything || fs.flags[id]
}

// IsEverything reports whether the wildcard sentinel is set
func (fs FeatureSet) IsEverything() bool {
	return fs.everything
}

// Enabled lists enabled features in a stable order
func (fs FeatureSet) Enabled() []FeatureID {
	var out []FeatureID
	for _, id := range AllFeatures {
		if fs.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Map expands the set into every known feature with its verdict
func (fs FeatureSet) Map() map[FeatureID]bool {
	out := make(map[FeatureID]bool, len(AllFeatures))
	for _, id := range AllFeatures {
		out[id] = fs.Has(id)
	}
	return out
}

func (fs *FeatureSet) fromMap(raw map[string]bool) {
	fs.everything = false
	fs.flags = make(map[FeatureID]bool, len(raw))
	fs.Unknown = nil
	for key, enabled := range raw {
		if key == EverythingKey {
			fs.everything = enabled
			continue
		}
		id, ok := ParseFeature(key)
		if !ok {
			fs.Unknown = append(fs.Unknown, key)
			continue
		}
		fs.flags[id] = enabled
	}
	sort.Strings(fs.Unknown)
}

func (fs FeatureSet) toMap() map[string]bool {
	raw := make(map[string]bool, len(fs.flags)+1)
	if fs.everything {
		raw[EverythingKey] = true
	}
	for id, enabled := range fs.flags {
		raw[string(id)] = enabled
	}
	return raw
}

// MarshalJSON encodes the set as {"feature_id": bool}
func (fs FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.toMap())
}

// UnmarshalJSON decodes {"feature_id": bool}, dropping unknown keys
func (fs *FeatureSet) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid feature set: %w", err)
	}
	fs.fromMap(raw)
	return nil
}

// MarshalYAML encodes the set as a mapping
func (fs FeatureSet) MarshalYAML() (interface{}, error) {
	return fs.toMap(), nil
}

// UnmarshalYAML decodes a mapping, dropping unknown keys
func (fs *FeatureSet) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]bool
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("invalid feature set: %w", err)
	}
	fs.fromMap(raw)
	return nil
}
