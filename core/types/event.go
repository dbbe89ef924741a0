package types

// Event represents a typed record emitted by a completed pool operation.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
