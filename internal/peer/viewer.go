package peer

import (
	"encoding/json"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/junsooki/AirCam/internal/transport"
)

// ViewerSignaler is the signaling surface a Viewer needs.
type ViewerSignaler interface {
	candidateSender
	SendOffer(target string, payload json.RawMessage) error
}

// Viewer manages the receiving side of the WebRTC connection.
type Viewer struct {
	pc        *webrtc.PeerConnection
	sig       ViewerSignaler
	transport *transport.DataChannelTransport
	hostID    string
	log       logging.LeveledLogger
}

// NewViewer creates a Viewer that will connect to hostID.
func NewViewer(sig ViewerSignaler, hostID string, lf logging.LoggerFactory) (*Viewer, error) {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	pc, err := NewPeerConnection(lf, nil)
	if err != nil {
		return nil, err
	}

	framesDC, controlDC, err := openChannels(pc)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	v := &Viewer{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(framesDC, controlDC, lf),
		hostID:    hostID,
		log:       lf.NewLogger("peer"),
	}
	controlDC.OnOpen(func() { v.log.Infof("%s data channel open", transport.ControlLabel) })

	trickle(pc, sig, func() string { return hostID }, v.log)
	return v, nil
}

// Transport returns the frame receiver and control sender.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect creates and sends the offer.
func (v *Viewer) Connect() error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return v.sig.SendOffer(v.hostID, offerJSON)
}

// HandleAnswer processes the host's SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return v.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(v.pc, payload)
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		if err := v.pc.Close(); err != nil {
			v.log.Warnf("close: %v", err)
		}
	}
}
