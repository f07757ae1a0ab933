// Package snapcast implements the routing.Controller interface against a
// Snapcast server's JSON-RPC control port.
//
// The protocol is JSON-RPC 2.0 over a plain TCP socket with one message
// per line. Requests are correlated to responses by ID, so calls from
// multiple goroutines can be in flight at once. Unsolicited server
// notifications (client connects, volume changes made by other
// controllers) are forwarded to an optional callback.
package snapcast
