// Package api provides the HTTP REST API and WebSocket server for the
// SoundMesh hub.
//
// It exposes zone and client commands, system status, and real-time state
// updates to user interfaces (wall panels, mobile apps, dashboards). Command
// handlers follow one flow: load the current snapshot, apply a transform
// through the state store, enqueue status notifications, and trigger a
// grouping pass when the change affects zone topology.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
