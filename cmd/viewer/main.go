package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/junsooki/AirCam/internal/config"
	"github.com/junsooki/AirCam/internal/decoder"
	"github.com/junsooki/AirCam/internal/display"
	"github.com/junsooki/AirCam/internal/peer"
	"github.com/junsooki/AirCam/internal/signaling"
	"github.com/junsooki/AirCam/internal/transport"
)

func main() {
	cfg, err := config.ParseViewerFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("Usage: aircam-viewer -signaling <url> -host <host-id>: %v", err)
	}
	lf, err := config.NewLoggerFactory(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Printf("AirCam Viewer starting")
	log.Printf("  Viewer ID:   %s", cfg.ViewerID)
	log.Printf("  Signaling:   %s", cfg.SignalingURL)
	log.Printf("  Target host: %s", cfg.HostID)

	dec := decoder.NewJPEGDecoder()
	latest := &display.Latest{}

	var viewer *peer.Viewer
	send := func(a transport.Action) func() {
		return func() {
			if viewer == nil {
				return
			}
			if err := viewer.Transport().SendControl(transport.Control{Action: a}); err != nil {
				log.Printf("send %s: %v", a, err)
			}
		}
	}

	disp := display.NewEbitenDisplay("AirCam Viewer", latest,
		display.WithKey(ebiten.KeyF, send(transport.ActionFlip)),
		display.WithKey(ebiten.KeyS, send(transport.ActionStop)),
		display.WithKey(ebiten.KeyR, send(transport.ActionStart)),
	)

	var sig *signaling.Client
	sig = signaling.NewClient(cfg.SignalingURL, cfg.ViewerID, signaling.ClientTypeViewer, signaling.Handler{
		OnRegistered: func() {
			log.Println("Registered with signaling server")

			var err error
			viewer, err = peer.NewViewer(sig, cfg.HostID, lf)
			if err != nil {
				log.Fatalf("create viewer peer: %v", err)
			}

			viewer.Transport().OnFrame(func(m transport.Message) {
				data, err := base64.StdEncoding.DecodeString(m.Payload)
				if err != nil {
					log.Printf("frame payload: %v", err)
					return
				}
				img, err := dec.Decode(data)
				if err != nil {
					log.Printf("decode %s: %v", m.MediaType, err)
					return
				}
				latest.Set(img)
			})

			if err := viewer.Connect(); err != nil {
				log.Printf("viewer connect: %v", err)
			}
		},
		OnAnswer: func(from string, payload json.RawMessage) {
			if viewer != nil {
				if err := viewer.HandleAnswer(payload); err != nil {
					log.Printf("handle answer: %v", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if viewer != nil {
				if err := viewer.HandleICECandidate(payload); err != nil {
					log.Printf("handle ICE candidate: %v", err)
				}
			}
		},
		OnHostDisconnected: func(hostID string) {
			if hostID == cfg.HostID {
				log.Printf("host %s disconnected", hostID)
				latest.Set(nil)
			}
		},
		OnError: func(msg string) {
			log.Printf("signaling error: %s", msg)
		},
	}, lf)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = sig.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("signaling connect: %v", err)
	}
	defer sig.Close()

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if err := disp.Run(); err != nil {
		log.Fatalf("display: %v", err)
	}

	if viewer != nil {
		viewer.Close()
	}
}
