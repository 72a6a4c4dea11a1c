// Package limits enforces numeric plan ceilings against live counts.
//
// A ceiling of -1 is unlimited. Otherwise the governed entity is counted
// through a Counter and the check passes while current < max, since it runs
// before the new entity is created. Cached tenant counters are reported for
// unlimited ceilings but never decide a check.
package limits
