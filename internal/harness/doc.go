// Package harness runs scripted editing sessions and checks the result.
//
// A script builds or loads a scenario through the same node API an editor
// uses, then asserts on the final export. Scripts are the executable form
// of the behaviours the loader and the session promise: pruning, listener
// calls, and branch and timestamp validation.
//
// # Script Format
//
// Scripts are YAML files with the following structure:
//
//	name: add_regeling
//	description: "Baseline with one regeling, changed in a project"
//	session_id: script-1
//	bevoegd_gezag: Gemeente
//	bg_code: "0344"
//	startdatum: "2024-01-01"
//	steps:
//	  - op: set_version
//	    branch: Uitgangssituatie
//	    code: reg_01
//	    kind: new
//	  - op: add_activity
//	    project: P1
//	    soort: Wijziging
//	    tijdstip: 10
//	  - op: set_version
//	    project: P1
//	    activity: 0
//	    branch: B1
//	    code: reg_01
//	  - op: annotate
//	    project: P1
//	    activity: 0
//	    branch: B1
//	    code: reg_01
//	    annotation: Citeertitel
//	    value: "Omgevingsplan"
//	assertions:
//	  - type: export_contains
//	    path: /Projecten/P1/0/B1/reg_01/Citeertitel
//	    value: "Omgevingsplan"
//	  - type: valid
//
// # Step Operations
//
//   - set: sets a root property (BevoegdGezag, BGCode, Beschrijving,
//     Startdatum), an activity property (Tijdstip, Basis, ...), or with a
//     branch the Soort of a momentopname
//   - remove: removes a root property, an activity, or a momentopname
//   - add_activity: appends an activity to a project (or Overig)
//   - set_version: marks an instrument new, withdrawn or revert; without a
//     code, type allocates the next free code
//   - annotate: sets an annotation on an instrument version
//   - load: replaces the tree with a JSON or CUE document
//
// A step that fails aborts nothing: the failure is recorded and the run
// fails unless the step names it in expect_error.
//
// # Assertion Types
//
//   - export_contains: the export has a value at path (equal to value, if given)
//   - export_absent: the export has nothing at path
//   - valid: the tree loads (or, with valid: false, does not)
//   - load_error: the last load step failed with the given code
//   - listener_calls: change listeners were called exactly count times
//   - journal_entries: the export journal holds exactly count entries
//
// # Deterministic Testing
//
// Every run uses a fixed session id, an in-memory journal, and numbered
// steps, so the same script produces the same export and the same trace.
package harness
