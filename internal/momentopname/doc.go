// Package momentopname models dated snapshots of instrument versions and the
// branch timelines that produce them.
//
// A Momentopname is built from a predecessor by cloning every instrument
// version it holds, so an instrument that a step does not mention keeps its
// last known version. Clones never alias: editing a version in a later
// snapshot leaves earlier snapshots untouched.
//
// A Timeline replays the change activities of a scenario in order. It owns
// branch claims (a branch belongs to exactly one project) and the per-work
// version sequence, and it registers instruments in the caller's Registry.
package momentopname
