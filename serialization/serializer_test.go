package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
}

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := NewJSONSerializer()

	data, err := s.Serialize(payload{OrderID: "o-1", Amount: 250})
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"o-1","amount":250}`, string(data))

	var decoded payload
	require.NoError(t, s.Deserialize(data, &decoded))
	assert.Equal(t, "o-1", decoded.OrderID)
	assert.Equal(t, 250, decoded.Amount)
}

func TestJSONSerializerDeserializeError(t *testing.T) {
	s := NewJSONSerializer()

	var decoded payload
	err := s.Deserialize([]byte("{truncated"), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestJSONSerializerSerializeError(t *testing.T) {
	s := NewJSONSerializer()

	_, err := s.Serialize(func() {})
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", NewJSONSerializer().ContentType())
}
