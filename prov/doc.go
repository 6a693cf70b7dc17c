// Package prov defines the provenance and consensus engine's core contracts.
//
// Producers open an AnnotationRun, write Claims tagged with it, and attach
// Evidence. The consensus selector picks one current Claim per Subject+Kind.
// Scholars override it with Decisions, which form an append-only chain per
// Subject+Kind guarded by optimistic concurrency on the active decision.
//
// The SQLite implementation lives in prov/storage; bibliographic resolution
// built on the same primitives lives in biblio.
package prov
