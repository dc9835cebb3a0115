package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/junsooki/AirCam/internal/transport"
)

// HostSignaler is the signaling surface a Host needs.
type HostSignaler interface {
	candidateSender
	SendAnswer(target string, payload json.RawMessage) error
}

// Host manages the publishing side of the WebRTC connection.
type Host struct {
	pc        *webrtc.PeerConnection
	sig       HostSignaler
	transport *transport.DataChannelTransport
	log       logging.LeveledLogger

	mu     sync.Mutex
	peerID string
}

// NewHost creates a Host peer. onOpen runs once the frames channel is
// open; onState observes connection state changes. Both may be nil.
func NewHost(sig HostSignaler, lf logging.LoggerFactory, onOpen func(), onState func(webrtc.PeerConnectionState)) (*Host, error) {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	pc, err := NewPeerConnection(lf, onState)
	if err != nil {
		return nil, err
	}

	h := &Host{
		pc:  pc,
		sig: sig,
		log: lf.NewLogger("peer"),
	}

	framesDC, controlDC, err := openChannels(pc)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	framesDC.OnOpen(func() {
		h.log.Infof("%s data channel open", transport.FramesLabel)
		if onOpen != nil {
			onOpen()
		}
	})

	h.transport = transport.NewDataChannelTransport(framesDC, controlDC, lf)
	trickle(pc, sig, h.remote, h.log)
	return h, nil
}

// Transport returns the frame sink and control receiver.
func (h *Host) Transport() *transport.DataChannelTransport {
	return h.transport
}

func (h *Host) remote() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peerID
}

// HandleOffer answers an offer from a viewer.
func (h *Host) HandleOffer(from string, payload json.RawMessage) error {
	h.mu.Lock()
	h.peerID = from
	h.mu.Unlock()

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}
	if err := h.pc.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return h.sig.SendAnswer(from, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate.
func (h *Host) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(h.pc, payload)
}

// Close shuts down the peer connection.
func (h *Host) Close() {
	if h.pc != nil {
		if err := h.pc.Close(); err != nil {
			h.log.Warnf("close: %v", err)
		}
	}
}
