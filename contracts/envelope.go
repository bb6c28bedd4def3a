package contracts

// MessageEnvelope captures the identity of one delivery. It is read once
// from the raw delivery before any handler runs and is immutable thereafter.
type MessageEnvelope struct {
	MessageID     string
	CorrelationID string
	Timestamp     int64 // unix seconds
	Headers       map[string]interface{}
	Body          []byte
}

// CorrelationContext carries the causal metadata extracted from a message's
// headers. It is built once per delivery by a ContextProvider and threaded
// explicitly through the plugin chain, the handler and the retry loop.
type CorrelationContext struct {
	values map[string]string
}

// NewCorrelationContext creates a context from the given values. The map is
// copied so callers cannot mutate the context afterwards.
func NewCorrelationContext(values map[string]string) CorrelationContext {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return CorrelationContext{values: copied}
}

// Get returns the value stored under key.
func (c CorrelationContext) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of stored values.
func (c CorrelationContext) Len() int {
	return len(c.values)
}

// AsHeaders renders the context as broker headers so it can travel with an
// outward message.
func (c CorrelationContext) AsHeaders() map[string]interface{} {
	headers := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		headers[k] = v
	}
	return headers
}
