package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/pion/logging"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/AirCam/internal/capture"
	"github.com/junsooki/AirCam/internal/config"
	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/device/camera"
	"github.com/junsooki/AirCam/internal/device/screen"
	"github.com/junsooki/AirCam/internal/display"
	"github.com/junsooki/AirCam/internal/peer"
	"github.com/junsooki/AirCam/internal/permissions"
	"github.com/junsooki/AirCam/internal/preview"
	"github.com/junsooki/AirCam/internal/session"
	"github.com/junsooki/AirCam/internal/signaling"
	"github.com/junsooki/AirCam/internal/surface"
	"github.com/junsooki/AirCam/internal/transport"
)

const statsInterval = 30 * time.Second

func main() {
	cfg, err := config.ParseHostFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lf, err := config.NewLoggerFactory(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Printf("AirCam Host starting")
	log.Printf("  Host ID:    %s", cfg.HostID)
	log.Printf("  Signaling:  %s", cfg.SignalingURL)
	log.Printf("  Role:       %s", cfg.Role)
	log.Printf("  FPS:        %d", cfg.FPS)
	log.Printf("  Quality:    %d", cfg.Quality)

	var provider device.Provider
	if cfg.Role == device.RoleScreen {
		if !permissions.HasScreenRecording() {
			log.Println("Screen Recording permission not granted. Requesting...")
			permissions.RequestScreenRecording()
			log.Fatal("Please grant Screen Recording permission in System Settings and restart.")
		}
		provider = screen.NewProvider(0, lf)
	} else {
		provider = camera.NewProvider(lf)
	}

	thumb := preview.NewThumbnail(cfg.PreviewW, cfg.PreviewH)
	ctrl := session.NewController(provider, surface.NewVideo(), thumb,
		session.WithRole(cfg.Role),
		session.WithMotionConfig(cfg.Motion),
		session.WithLoggerFactory(lf),
		session.WithCaptureOptions(
			capture.WithResolution(cfg.Width, cfg.Height),
			capture.WithQuality(cfg.Quality),
			capture.WithMinPayloadSize(cfg.MinPayload),
		),
		session.WithStateListener(func(s session.State) {
			log.Printf("session %s", s)
		}),
	)
	if ok, err := ctrl.IsSupported(); !ok {
		log.Fatalf("capture unavailable: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := &host{cfg: cfg, lf: lf, ctrl: ctrl, ctx: ctx}
	h.sig = signaling.NewClient(cfg.SignalingURL, cfg.HostID, signaling.ClientTypeHost, signaling.Handler{
		OnRegistered: func() {
			log.Println("Registered with signaling server")
		},
		OnOffer: h.handleOffer,
		OnICECandidate: func(from string, payload json.RawMessage) {
			if p := h.current(); p != nil {
				if err := p.HandleICECandidate(payload); err != nil {
					log.Printf("handle ICE candidate: %v", err)
				}
			}
		},
	}, lf)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = h.sig.Connect(dialCtx)
	cancel()
	if err != nil {
		log.Fatalf("signaling connect: %v", err)
	}
	defer h.sig.Close()

	log.Printf("Host ready. Share this ID with viewers: %s", cfg.HostID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-h.sig.Done():
			return errors.New("signaling connection closed")
		}
	})
	g.Go(func() error {
		h.reportStats(gctx, lf.NewLogger("host"))
		return nil
	})

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if cfg.Preview {
		disp := display.NewEbitenDisplay("AirCam Preview", thumb,
			display.WithWindowSize(cfg.PreviewW*2, cfg.PreviewH*2),
			display.WithKey(ebiten.KeyF, func() { h.control(transport.ActionFlip) }),
			display.WithKey(ebiten.KeyS, h.toggle),
		)
		if err := disp.Run(); err != nil {
			log.Printf("preview: %v", err)
		}
		stop()
	}

	if err := g.Wait(); err != nil {
		log.Printf("host: %v", err)
	}

	log.Println("Shutting down...")
	if err := ctrl.Stop(); err != nil {
		log.Printf("stop capture: %v", err)
	}
	if p := h.current(); p != nil {
		p.Close()
	}
}

// host ties one viewer connection at a time to the session controller.
type host struct {
	cfg  *config.HostConfig
	lf   logging.LoggerFactory
	ctrl *session.Controller
	sig  *signaling.Client
	ctx  context.Context

	mu   sync.Mutex
	peer *peer.Host
}

func (h *host) current() *peer.Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *host) handleOffer(from string, payload json.RawMessage) {
	log.Printf("Received offer from %s", from)

	h.mu.Lock()
	old := h.peer
	h.peer = nil
	h.mu.Unlock()
	if old != nil {
		if err := h.ctrl.Stop(); err != nil {
			log.Printf("stop capture: %v", err)
		}
		old.Close()
	}

	var p *peer.Host
	p, err := peer.NewHost(h.sig, h.lf,
		func() { go h.start(p.Transport()) },
		func(s webrtc.PeerConnectionState) {
			switch s {
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
				if h.current() == p {
					if err := h.ctrl.Stop(); err != nil {
						log.Printf("stop capture: %v", err)
					}
				}
			}
		})
	if err != nil {
		log.Printf("create host peer: %v", err)
		return
	}
	p.Transport().OnControl(func(c transport.Control) { h.control(c.Action) })

	h.mu.Lock()
	h.peer = p
	h.mu.Unlock()

	if err := p.HandleOffer(from, payload); err != nil {
		log.Printf("handle offer: %v", err)
	}
}

func (h *host) start(sink transport.FrameSender) {
	if err := h.ctrl.Start(h.ctx, h.cfg.FPS, sink); err != nil {
		log.Printf("start capture: %v", err)
	}
}

func (h *host) control(a transport.Action) {
	switch a {
	case transport.ActionFlip:
		if err := h.ctrl.Flip(h.ctx); err != nil {
			log.Printf("flip: %v", err)
		}
	case transport.ActionStop:
		if err := h.ctrl.Stop(); err != nil {
			log.Printf("stop capture: %v", err)
		}
	case transport.ActionStart:
		if p := h.current(); p != nil {
			h.start(p.Transport())
		}
	}
}

// toggle stops an active session or starts an idle one.
func (h *host) toggle() {
	if h.ctrl.State() == session.StateIdle {
		h.control(transport.ActionStart)
		return
	}
	h.control(transport.ActionStop)
}

func (h *host) reportStats(ctx context.Context, log logging.LeveledLogger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if st, ok := h.ctrl.GateStats(); ok {
			log.Infof("gate: candidates=%d forwarded=%d dropped=%d last_score=%.1f",
				st.Candidates, st.Forwarded, st.Dropped, st.LastScore)
		}
		if p := h.current(); p != nil {
			sent, dropped := p.Transport().Counts()
			log.Infof("transport: sent=%d congested=%d", sent, dropped)
		}
	}
}
