package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

const (
	FramesLabel  = "frames"
	ControlLabel = "control"

	// DefaultHighWater is the buffered byte count above which frames are
	// dropped instead of queued.
	DefaultHighWater = 1 << 20
)

var (
	ErrChannelNotOpen = errors.New("data channel not open")
	ErrCongested      = errors.New("data channel congested")
)

// DataChannelTransport carries frames and control commands over WebRTC
// DataChannels as JSON text messages.
type DataChannelTransport struct {
	log       logging.LeveledLogger
	highWater uint64

	mu        sync.RWMutex
	framesDC  *webrtc.DataChannel
	controlDC *webrtc.DataChannel
	onFrame   func(Message)
	onControl func(Control)

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewDataChannelTransport wraps the frames and control channels. Either may
// be nil and set later when the remote side announces it.
func NewDataChannelTransport(framesDC, controlDC *webrtc.DataChannel, lf logging.LoggerFactory) *DataChannelTransport {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	t := &DataChannelTransport{
		log:       lf.NewLogger("transport"),
		highWater: DefaultHighWater,
	}
	if framesDC != nil {
		t.SetFramesChannel(framesDC)
	}
	if controlDC != nil {
		t.SetControlChannel(controlDC)
	}
	return t
}

// SetHighWater changes the congestion threshold.
func (t *DataChannelTransport) SetHighWater(n uint64) {
	t.mu.Lock()
	t.highWater = n
	t.mu.Unlock()
}

// SendFrame queues msg without blocking. When the channel already holds
// more than the high-water mark the frame is dropped with ErrCongested.
func (t *DataChannelTransport) SendFrame(msg Message) error {
	t.mu.RLock()
	dc, hw := t.framesDC, t.highWater
	t.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	if dc.BufferedAmount() > hw {
		if n := t.dropped.Add(1); n%100 == 1 {
			t.log.Warnf("frames channel congested, dropped %d frames so far", n)
		}
		return ErrCongested
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := dc.SendText(string(data)); err != nil {
		return err
	}
	t.sent.Add(1)
	return nil
}

// SendControl sends c on the control channel.
func (t *DataChannelTransport) SendControl(c Control) error {
	t.mu.RLock()
	dc := t.controlDC
	t.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return dc.SendText(string(data))
}

func (t *DataChannelTransport) OnFrame(cb func(Message)) {
	t.mu.Lock()
	t.onFrame = cb
	t.mu.Unlock()
}

func (t *DataChannelTransport) OnControl(cb func(Control)) {
	t.mu.Lock()
	t.onControl = cb
	t.mu.Unlock()
}

// SetFramesChannel sets or replaces the frames DataChannel.
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { t.handleFrame(msg.Data) })
}

// SetControlChannel sets or replaces the control DataChannel.
func (t *DataChannelTransport) SetControlChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.controlDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { t.handleControl(msg.Data) })
}

// Counts returns the number of frames sent and dropped for congestion.
func (t *DataChannelTransport) Counts() (sent, dropped uint64) {
	return t.sent.Load(), t.dropped.Load()
}

func (t *DataChannelTransport) handleFrame(data []byte) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.log.Warnf("bad frame message: %v", err)
		return
	}
	t.mu.RLock()
	cb := t.onFrame
	t.mu.RUnlock()
	if cb != nil {
		cb(m)
	}
}

func (t *DataChannelTransport) handleControl(data []byte) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		t.log.Warnf("bad control message: %v", err)
		return
	}
	if !c.Action.Valid() {
		t.log.Warnf("unknown control action %q", c.Action)
		return
	}
	t.mu.RLock()
	cb := t.onControl
	t.mu.RUnlock()
	if cb != nil {
		cb(c)
	}
}
