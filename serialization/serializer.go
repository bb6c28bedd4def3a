package serialization

import (
	"encoding/json"
	"fmt"
)

// Serializer converts messages to and from their wire representation. The
// consumer core calls Deserialize exactly once per delivery, before the
// correlation context is built.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, into interface{}) error
}

// JSONSerializer is the default wire format.
type JSONSerializer struct{}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer() JSONSerializer {
	return JSONSerializer{}
}

// Serialize implements Serializer
func (JSONSerializer) Serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialization: marshal %T: %w", v, err)
	}
	return data, nil
}

// Deserialize implements Serializer
func (JSONSerializer) Deserialize(data []byte, into interface{}) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("serialization: unmarshal into %T: %w", into, err)
	}
	return nil
}

// ContentType returns the MIME type written on published messages.
func (JSONSerializer) ContentType() string {
	return "application/json"
}
