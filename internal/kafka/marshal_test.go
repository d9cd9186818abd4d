package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}

	b, err := Marshal(payload{OrderID: "o-1"})
	require.NoError(t, err)

	got, err := UnwrapPayload[payload](json.RawMessage(b))
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"order_id":`))
	assert.ErrorContains(t, err, "decode payload")

	_, err = Marshal(make(chan int))
	assert.Error(t, err)
}
