// Package instrument models the legal instruments a specification refers to
// and the registry that keeps their identities unique within a session.
//
// An Instrument is an immutable identity: type tag, short code (reg_01) and
// the work identifier derived from type, authority, creation year and code.
// An Instrumentversie is a mutable version record of one instrument.
//
// Registries are caller-owned values. Every editing session and every load
// gets its own Registry, so tests and concurrent sessions never share state.
package instrument
