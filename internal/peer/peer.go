// Package peer sets up the WebRTC peer connections that carry frames from
// a capture host to a viewer.
package peer

import (
	"encoding/json"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/junsooki/AirCam/internal/transport"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// candidateSender is the part of the signaling client a peer trickles ICE
// candidates through.
type candidateSender interface {
	SendICECandidate(target string, payload json.RawMessage) error
}

// NewPeerConnection creates a PeerConnection whose pion internals log
// through lf. onState may be nil.
func NewPeerConnection(lf logging.LoggerFactory, onState func(webrtc.PeerConnectionState)) (*webrtc.PeerConnection, error) {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	se := webrtc.SettingEngine{LoggerFactory: lf}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: ICEServers})
	if err != nil {
		return nil, err
	}
	log := lf.NewLogger("peer")
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Infof("peer connection state: %s", state)
		if onState != nil {
			onState(state)
		}
	})
	return pc, nil
}

const (
	framesChannelID  uint16 = 1
	controlChannelID uint16 = 2
)

// openChannels creates the frames and control channels out of band with
// fixed stream IDs. Both peers call it, so the offer always has an
// application section and neither side waits for OnDataChannel.
func openChannels(pc *webrtc.PeerConnection) (frames, control *webrtc.DataChannel, err error) {
	// Frames are lossy: a late frame is worth less than the next one.
	negotiated := true
	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesID := framesChannelID
	frames, err = pc.CreateDataChannel(transport.FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
		Negotiated:     &negotiated,
		ID:             &framesID,
	})
	if err != nil {
		return nil, nil, err
	}

	controlOrdered := true
	controlID := controlChannelID
	control, err = pc.CreateDataChannel(transport.ControlLabel, &webrtc.DataChannelInit{
		Ordered:    &controlOrdered,
		Negotiated: &negotiated,
		ID:         &controlID,
	})
	if err != nil {
		return nil, nil, err
	}
	return frames, control, nil
}

// trickle forwards local ICE candidates to whatever target returns.
func trickle(pc *webrtc.PeerConnection, sig candidateSender, target func() string, log logging.LeveledLogger) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		to := target()
		if to == "" {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Warnf("marshal ICE candidate: %v", err)
			return
		}
		if err := sig.SendICECandidate(to, data); err != nil {
			log.Warnf("send ICE candidate: %v", err)
		}
	})
}

func addCandidate(pc *webrtc.PeerConnection, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return pc.AddICECandidate(candidate)
}
