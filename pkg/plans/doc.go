// Package plans defines subscription plans and the feature gate.
//
// Features and limits are closed enums. A plan's feature map may carry the
// "everything" sentinel, which grants every known feature; ids that are not
// part of the enum are dropped on load and are never granted.
//
// A tenant with no plan, or whose plan is inactive, gets DefaultFeatures and
// DefaultLimits.
//
// Plans are served by a Source: a YAML Catalog (hot reloaded with fsnotify)
// or PostgresSource, optionally wrapped in CachedSource.
//
//	plans:
//	  - id: starter
//	    active: true
//	    features: {dashboard: true, core_booking: true}
//	    limits: {maxUsers: 3, maxVenues: 1}
package plans
