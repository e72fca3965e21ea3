package types

// Event is the structured record handed to downstream consumers (indexers,
// yield routers, monitoring). Attribute values are rendered as strings so the
// payload stays stable across transport encodings.
type Event struct {
	Type       string
	Attributes map[string]string
}
