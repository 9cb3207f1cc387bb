package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishWithNoClientsDoesNotBlock(t *testing.T) {
	h := NewHub()
	assert.NotPanics(t, func() {
		h.Publish(Event{Type: "pass-start", Pass: "crosslink"})
	})
}

func TestEvent_JSONOmitsEmptyFields(t *testing.T) {
	ev := Event{Type: "pass-start"}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pass-start"}`, string(data))

	ev2 := Event{Type: "pass-done", Pass: "timing", Message: "ok"}
	data2, err := json.Marshal(ev2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pass-done","pass":"timing","message":"ok"}`, string(data2))
}
