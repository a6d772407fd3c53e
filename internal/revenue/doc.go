// Package revenue tracks platform earnings against daily targets.
//
// Platforms come from a YAML registry mirrored into the event log.
// Performance is measured from settled transactions whose account is
// the platform name; streams below half their target raise alerts
// through the notify dispatcher. All amounts are integer cents.
package revenue
