package transport

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_WireFormat(t *testing.T) {
	data, err := json.Marshal(Message{MediaType: "image/jpeg", Payload: "/9j/4AAQ"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mimeType":"image/jpeg","data":"/9j/4AAQ"}`, string(data))
}

func TestControl_WireFormat(t *testing.T) {
	var c Control
	require.NoError(t, json.Unmarshal([]byte(`{"action":"flip"}`), &c))
	assert.Equal(t, ActionFlip, c.Action)
	assert.True(t, c.Action.Valid())
	assert.False(t, Action("reboot").Valid())
}

func TestSenderFunc(t *testing.T) {
	var got Message
	var s FrameSender = SenderFunc(func(m Message) error {
		got = m
		return errors.New("full")
	})
	err := s.SendFrame(Message{MediaType: "image/jpeg", Payload: "x"})
	assert.EqualError(t, err, "full")
	assert.Equal(t, "x", got.Payload)
}

func TestDataChannelTransport_NoChannels(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil, nil)
	assert.ErrorIs(t, tr.SendFrame(Message{}), ErrChannelNotOpen)
	assert.ErrorIs(t, tr.SendControl(Control{Action: ActionStop}), ErrChannelNotOpen)
}

func TestDataChannelTransport_Dispatch(t *testing.T) {
	tr := NewDataChannelTransport(nil, nil, nil)

	var frames []Message
	var controls []Control
	tr.OnFrame(func(m Message) { frames = append(frames, m) })
	tr.OnControl(func(c Control) { controls = append(controls, c) })

	tr.handleFrame([]byte(`{"mimeType":"image/jpeg","data":"abc"}`))
	tr.handleFrame([]byte(`not json`))
	tr.handleControl([]byte(`{"action":"stop"}`))
	tr.handleControl([]byte(`{"action":"explode"}`))

	require.Len(t, frames, 1)
	assert.Equal(t, Message{MediaType: "image/jpeg", Payload: "abc"}, frames[0])
	assert.Equal(t, []Control{{Action: ActionStop}}, controls)
}
