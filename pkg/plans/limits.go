package plans

import (
	"fmt"
	"strings"
)

// LimitName identifies a numeric plan ceiling
type LimitName string

const (
	LimitMaxUsers            LimitName = "maxUsers"
	LimitMaxVenues           LimitName = "maxVenues"
	LimitMaxBookingsPerMonth LimitName = "maxBookingsPerMonth"
	LimitMaxSpacesPerVenue   LimitName = "maxSpacesPerVenue"
)

// Unlimited is the ceiling value meaning no limit
const Unlimited int64 = -1

// AllLimits lists every known limit
var AllLimits = []LimitName{
	LimitMaxUsers,
	LimitMaxVenues,
	LimitMaxBookingsPerMonth,
	LimitMaxSpacesPerVenue,
}

// ParseLimit returns the limit for s. Unknown names return false.
func ParseLimit(s string) (LimitName, bool) {
	name := LimitName(strings.TrimSpace(s))
	return name, name.Known()
}

// Known reports whether l is a recognized limit
func (l LimitName) Known() bool {
	for _, known := range AllLimits {
		if l == known {
			return true
		}
	}
	return false
}

// PerVenue reports whether the limit is counted per venue rather than per tenant
func (l LimitName) PerVenue() bool {
	return l == LimitMaxSpacesPerVenue
}

// LimitSet maps limits to ceilings
type LimitSet map[LimitName]int64

// Max returns the ceiling for l. A limit missing from the set has ceiling 0.
func (ls LimitSet) Max(l LimitName) int64 {
	return ls[l]
}

// Validate rejects unknown names and ceilings below -1
func (ls LimitSet) Validate() error {
	for name, max := range ls {
		if !name.Known() {
			return fmt.Errorf("unknown limit %q", name)
		}
		if max < Unlimited {
			return fmt.Errorf("limit %s must be >= -1, got %d", name, max)
		}
	}
	return nil
}
