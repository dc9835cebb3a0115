package transport

// Message is what crosses the outbound boundary for every accepted frame.
type Message struct {
	MediaType string `json:"mimeType"`
	Payload   string `json:"data"`
}

// FrameSender is the outbound sink. Implementations must not block the
// caller for long: nothing upstream retries or buffers on their behalf.
type FrameSender interface {
	SendFrame(msg Message) error
}

// SenderFunc adapts a function to FrameSender.
type SenderFunc func(msg Message) error

func (f SenderFunc) SendFrame(msg Message) error { return f(msg) }

// FrameReceiver receives frames on the remote side.
type FrameReceiver interface {
	OnFrame(callback func(msg Message))
}

// Action is a remote control command.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
	ActionFlip  Action = "flip"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionFlip:
		return true
	}
	return false
}

// Control is the wire format for control commands.
type Control struct {
	Action Action `json:"action"`
}

// ControlSender sends control commands to the publishing side.
type ControlSender interface {
	SendControl(c Control) error
}

// ControlReceiver receives control commands.
type ControlReceiver interface {
	OnControl(callback func(c Control))
}
