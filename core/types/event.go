package types

// Event represents a typed event emitted during protocol state transitions.
// Attributes carry the resulting entity snapshot for external indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
