package snapcast

import "encoding/json"

// jsonRPCVersion is the protocol version sent with every request.
const jsonRPCVersion = "2.0"

// rpcRequest is an outgoing JSON-RPC 2.0 request.
type rpcRequest struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcEnvelope is an incoming line from the server: either a response
// (ID set) or a notification (Method set, no ID).
type rpcEnvelope struct {
	ID      *uint64         `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError is a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Snapcast RPC method names.
const (
	methodServerGetStatus  = "Server.GetStatus"
	methodGroupSetClients  = "Group.SetClients"
	methodGroupSetStream   = "Group.SetStream"
	methodGroupSetName     = "Group.SetName"
	methodClientSetName    = "Client.SetName"
	methodClientSetVolume  = "Client.SetVolume"
	methodClientSetLatency = "Client.SetLatency"
)

// Request parameter shapes, matching the Snapcast control API.

type groupSetClientsParams struct {
	ID      string   `json:"id"`
	Clients []string `json:"clients"`
}

type groupSetStreamParams struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
}

type groupSetNameParams struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clientSetNameParams struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clientSetVolumeParams struct {
	ID     string       `json:"id"`
	Volume volumeParams `json:"volume"`
}

type volumeParams struct {
	Muted   bool `json:"muted"`
	Percent int  `json:"percent"`
}

type clientSetLatencyParams struct {
	ID      string `json:"id"`
	Latency int    `json:"latency"`
}
