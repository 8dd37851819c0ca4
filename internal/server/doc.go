// Package server implements the PirateFishing multiplayer session layer: the
// room registry, the per-connection join handshake, and the broadcast relay
// that propagates player join/leave/position events within a room.
//
// The implementation is organized into specialized files for the registry,
// hub, clients, protocol messages, configuration, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
