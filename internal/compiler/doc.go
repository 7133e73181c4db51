// Package compiler authors specifications in CUE and checks them before
// they are loaded.
//
// A CUE source is unified with the embedded #Specificatie schema, which
// catches structural mistakes (authority, BGCode, date format, activity
// Soort, version values) with source positions. The result is exported
// to JSON and handed to spec.Load, which enforces the scenario rules.
//
// Lint and AnalyzeBasis report what Load tolerates or cannot see: skipped
// activities, dropped annotations and properties, and Basis references
// that form cycles. They collect every finding instead of stopping at the
// first.
package compiler
