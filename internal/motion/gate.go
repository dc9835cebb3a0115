package motion

import (
	"image"
	"sync"

	"github.com/pion/logging"

	"github.com/junsooki/AirCam/internal/capture"
	"github.com/junsooki/AirCam/internal/decoder"
	"github.com/junsooki/AirCam/internal/transport"
)

// Renderer is the local preview the gate refreshes.
type Renderer interface {
	Render(img image.Image)
	Clear()
}

// Decision reports what the gate did with one candidate.
type Decision struct {
	Forwarded bool
	Forced    bool
	Score     float64
}

// Stats summarises gate activity since the last Reset.
type Stats struct {
	Candidates uint64
	Forwarded  uint64
	Dropped    uint64
	LastScore  float64
}

// Gate forwards visually changed camera frames to a sink.
//
// The forced-frame schedule counts candidates, not forwarded frames, so a
// static scene still yields one frame every ForceInterval candidates. The
// previous-pixel buffer, last significant frame and forwarded count change
// only when a frame is forwarded.
type Gate struct {
	cfg     Config
	dec     decoder.Decoder
	preview Renderer
	sink    transport.FrameSender
	log     logging.LeveledLogger

	mu         sync.Mutex
	prev       *image.RGBA
	last       capture.Frame
	candidates uint64
	forwarded  uint64
	dropped    uint64
	lastScore  float64
	previewed  bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDecoder replaces the JPEG decoder.
func WithDecoder(d decoder.Decoder) GateOption {
	return func(g *Gate) { g.dec = d }
}

// WithPreview sets the thumbnail the gate refreshes.
func WithPreview(r Renderer) GateOption {
	return func(g *Gate) { g.preview = r }
}

// WithLoggerFactory sets the logger factory.
func WithLoggerFactory(f logging.LoggerFactory) GateOption {
	return func(g *Gate) { g.log = f.NewLogger("motion") }
}

// NewGate creates a gate that forwards to sink. A zero Config selects
// DefaultConfig.
func NewGate(cfg Config, sink transport.FrameSender, opts ...GateOption) *Gate {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	g := &Gate{
		cfg:  cfg.withDefaults(),
		dec:  decoder.NewJPEGDecoder(),
		sink: sink,
		log:  logging.NewDefaultLoggerFactory().NewLogger("motion"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the effective configuration.
func (g *Gate) Config() Config { return g.cfg }

// Offer scores f and forwards it when it moved enough or a forced frame
// is due. Frames that cannot be decoded are dropped and logged.
func (g *Gate) Offer(f capture.Frame) Decision {
	cur, err := g.dec.Decode(f.Data)
	if err != nil {
		g.mu.Lock()
		g.dropped++
		g.mu.Unlock()
		g.log.Warnf("dropping frame %d: decode: %v", f.Seq, err)
		return Decision{}
	}

	g.mu.Lock()
	// The first frame of a session is shown before any decision.
	rendered := false
	if !g.previewed {
		g.render(cur)
		g.previewed = true
		rendered = true
	}

	score := Score(g.prev, cur, g.cfg.Stride)
	forced := g.candidates%uint64(g.cfg.ForceInterval) == 0
	g.candidates++
	g.lastScore = score

	d := Decision{Score: score, Forced: forced}
	if score < g.cfg.Threshold && !forced {
		g.dropped++
		g.mu.Unlock()
		return d
	}

	d.Forwarded = true
	g.prev = cur
	g.last = f
	g.forwarded++
	if !rendered {
		g.render(cur)
	}
	sink := g.sink
	g.mu.Unlock()

	if sink != nil {
		if err := sink.SendFrame(transport.Message{MediaType: f.MediaType, Payload: f.Payload}); err != nil {
			g.log.Warnf("sink rejected frame %d: %v", f.Seq, err)
		}
	}
	return d
}

func (g *Gate) render(img *image.RGBA) {
	if g.preview != nil {
		g.preview.Render(img)
	}
}

// LastSignificant returns the most recently forwarded frame.
func (g *Gate) LastSignificant() (capture.Frame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.forwarded > 0
}

// Reset clears motion state. The preview is left to its owner.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.prev = nil
	g.last = capture.Frame{}
	g.candidates = 0
	g.forwarded = 0
	g.dropped = 0
	g.lastScore = 0
	g.previewed = false
	g.mu.Unlock()
}

func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Candidates: g.candidates,
		Forwarded:  g.forwarded,
		Dropped:    g.dropped,
		LastScore:  g.lastScore,
	}
}

func (g *Gate) previous() *image.RGBA {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prev
}
