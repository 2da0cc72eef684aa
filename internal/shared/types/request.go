package types

// EmitRequest publishes an event through the HTTP API
type EmitRequest struct {
	Data interface{} `json:"data"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type  string      `json:"type"`
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}
