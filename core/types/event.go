package types

// Event is the generic, serializable form of a state change emitted by the
// settlement core. Attributes are flat string pairs so downstream indexers can
// mirror balances without knowing the concrete event type.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
