package api

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameFraming(t *testing.T) {
	frame := string(EncodeFrame(Event{Type: EventContentBlockDelta, Content: "Hel"}))

	assert.True(t, strings.HasPrefix(frame, "data: "), "frame must start with data: prefix")
	assert.True(t, strings.HasSuffix(frame, "\n\n"), "frame must end with a blank line")

	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Equal(t, EventContentBlockDelta, ev.Type)
	assert.Equal(t, "Hel", ev.Content)
}

func TestEncodeFrameOmitsEmptyFields(t *testing.T) {
	frame := string(EncodeFrame(Event{Type: EventState, State: StateInit}))

	assert.NotContains(t, frame, "content")
	assert.NotContains(t, frame, "tool_call_id")
	assert.NotContains(t, frame, "usage")
	assert.Contains(t, frame, `"state":"init"`)
}

func TestEncodeRawFrame(t *testing.T) {
	frame := string(EncodeRawFrame([]byte(`{"type":"vendor_extension","x":1}`)))
	assert.Equal(t, "data: {\"type\":\"vendor_extension\",\"x\":1}\n\n", frame)
}

func TestDoneFrame(t *testing.T) {
	assert.Equal(t, "data: [DONE]\n\n", DoneFrame)
}
