// Package server implements the session coordinator for 1v1 games: room
// creation and capacity-gated joining, verbatim move and chat relay between
// occupants, and immediate teardown when a pair breaks.
//
// The implementation is organized into specialized files for configuration,
// the session registry, rooms, clients, the hub, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
