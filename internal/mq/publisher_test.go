package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "invoice.review.approved", RoutingKey("invoice.review", "approved"))
	assert.Equal(t, "rejected", RoutingKey("", "rejected"))
}

func TestDecisionEvent_JSON(t *testing.T) {
	event := DecisionEvent{
		RecordID:       "3f1c",
		Decision:       "approved",
		Sequence:       7,
		SourceImageRef: "3f1c.png",
		Payload:        json.RawMessage(`{"confidence":95}`),
		DecidedAt:      time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "3f1c", decoded["record_id"])
	assert.Equal(t, "approved", decoded["decision"])
	assert.Equal(t, map[string]any{"confidence": 95.0}, decoded["payload"])
	assert.Equal(t, "2025-04-01T08:00:00Z", decoded["decided_at"])
}
