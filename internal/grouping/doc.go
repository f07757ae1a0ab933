// Package grouping keeps the audio-routing server's physical groups in
// step with SoundMesh's logical zone assignments.
//
// The invariant it maintains: every client logically assigned to zone Z,
// and only those clients, are members of the server group bound to Z's
// stream. The server is treated as an untrusted oracle — other
// controllers mutate it concurrently — so every corrective pass starts
// from a freshly fetched server snapshot, fetched exactly once per pass.
//
// Corrective passes collect per-client failures into a report instead of
// aborting: "server unreachable" fails the whole pass, while "one client
// would not move" leaves the rest of the pass intact so an operator can
// tell systemic outage from partial drift.
package grouping
