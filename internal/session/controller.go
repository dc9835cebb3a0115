// Package session runs the device lifecycle: start, stop and camera flip
// across repeated cycles, with at most one live capturer at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/junsooki/AirCam/internal/capture"
	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/motion"
	"github.com/junsooki/AirCam/internal/transport"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateActive:
		return "Active"
	case StateStopping:
		return "Stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const drainTimeout = time.Second

var (
	ErrFlipFailed      = errors.New("flip failed")
	ErrFlipUnsupported = errors.New("flip requires a camera role")
	ErrNotSupported    = device.ErrNotSupported
	ErrNilSink         = errors.New("nil frame sink")
)

// FlipError reports a failed restart after toggling the camera.
type FlipError struct {
	From, To device.Role
	Err      error
}

func (e *FlipError) Error() string {
	return fmt.Sprintf("flip %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *FlipError) Unwrap() []error { return []error{ErrFlipFailed, e.Err} }

// Option configures a Controller.
type Option func(*Controller)

// WithRole sets the initial device role. The default is the front camera.
func WithRole(r device.Role) Option {
	return func(c *Controller) { c.role = r }
}

// WithCaptureOptions are passed to every capturer the controller creates.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(c *Controller) { c.captureOpts = append(c.captureOpts, opts...) }
}

// WithMotionConfig tunes the camera gate.
func WithMotionConfig(cfg motion.Config) Option {
	return func(c *Controller) { c.motionCfg = cfg }
}

// WithLoggerFactory sets the logger factory for the controller and the
// capturers and gates it creates.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Controller) { c.loggerFactory = f }
}

// WithClock replaces time.Now for frame pacing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithStateListener is called on every state transition, in order. It runs
// after the controller's operation lock is released, so it may call Start,
// Stop or Flip; those transitions are queued behind the current ones.
func WithStateListener(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// generation is everything bound to one successful or attempted start.
type generation struct {
	capturer *capture.Capturer
	gate     *motion.Gate
	pacer    *motion.Pacer
	quit     chan struct{}

	// delivering is non-zero while the sampling goroutine is inside route.
	delivering atomic.Int32
}

// Controller owns the capturer for a single surface and preview.
type Controller struct {
	provider      device.Provider
	surface       device.Surface
	preview       motion.Renderer
	captureOpts   []capture.Option
	motionCfg     motion.Config
	loggerFactory logging.LoggerFactory
	now           func() time.Time
	onState       func(State)
	log           logging.LeveledLogger

	// opMu serialises Start, Stop, Flip and loss handling.
	opMu sync.Mutex
	gen  *generation

	mu          sync.Mutex
	state       State
	role        device.Role
	cadence     int
	sink        transport.FrameSender
	cancelStart context.CancelFunc
	pending     []State
	notifying   bool
}

// NewController creates an idle controller. preview may be nil.
func NewController(provider device.Provider, surface device.Surface, preview motion.Renderer, opts ...Option) *Controller {
	c := &Controller{
		provider:  provider,
		surface:   surface,
		preview:   preview,
		role:      device.RoleFrontCamera,
		motionCfg: motion.DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loggerFactory == nil {
		c.loggerFactory = logging.NewDefaultLoggerFactory()
	}
	c.log = c.loggerFactory.NewLogger("session")
	return c
}

// IsSupported reports whether the provider can capture at all on this
// platform.
func (c *Controller) IsSupported() (bool, error) {
	if err := c.provider.Supported(); err != nil {
		if errors.Is(err, ErrNotSupported) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", ErrNotSupported, err)
	}
	return true, nil
}

// Start begins capturing at cadence frames per second and delivers
// accepted frames to sink. A running session is fully stopped first.
// On failure the session is Idle and no device is held.
func (c *Controller) Start(ctx context.Context, cadence int, sink transport.FrameSender) error {
	c.opMu.Lock()
	defer c.unlockOp()
	return c.start(ctx, cadence, sink)
}

// Stop ends the session, cancelling a start in progress. It is idempotent.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.cancelStart != nil {
		c.cancelStart()
	}
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.unlockOp()
	return c.stop()
}

// Flip switches between front and rear camera, keeping cadence and sink.
// When idle it only toggles the role used by the next Start.
func (c *Controller) Flip(ctx context.Context) error {
	c.opMu.Lock()
	defer c.unlockOp()

	c.mu.Lock()
	from := c.role
	cadence, sink := c.cadence, c.sink
	c.mu.Unlock()

	if !from.IsCamera() {
		return ErrFlipUnsupported
	}
	to := from.Toggle()

	if c.gen == nil {
		c.setRole(to)
		return nil
	}

	if err := c.stop(); err != nil {
		c.log.Warnf("flip: stopping %s: %v", from, err)
	}
	c.setRole(to)
	c.log.Infof("flipping %s -> %s", from, to)

	if err := c.start(ctx, cadence, sink); err != nil {
		return &FlipError{From: from, To: to, Err: err}
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Role() device.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Cadence returns the cadence of the last Start.
func (c *Controller) Cadence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cadence
}

// GateStats returns the camera gate counters of the current session.
func (c *Controller) GateStats() (motion.Stats, bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.gen == nil || c.gen.gate == nil {
		return motion.Stats{}, false
	}
	return c.gen.gate.Stats(), true
}

// start runs with opMu held.
func (c *Controller) start(ctx context.Context, cadence int, sink transport.FrameSender) error {
	if cadence < 1 {
		return capture.ErrInvalidCadence
	}
	if sink == nil {
		return ErrNilSink
	}

	if c.gen != nil {
		c.log.Debugf("restart: stopping previous session")
		if err := c.stop(); err != nil {
			c.log.Warnf("restart: %v", err)
		}
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	role := c.role
	c.cadence = cadence
	c.sink = sink
	c.cancelStart = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelStart = nil
		c.mu.Unlock()
	}()

	c.setState(StateStarting)

	opts := append([]capture.Option{capture.WithLoggerFactory(c.loggerFactory)}, c.captureOpts...)
	g := &generation{
		capturer: capture.New(c.provider, role, opts...),
		quit:     make(chan struct{}),
	}
	if role.IsCamera() {
		g.gate = motion.NewGate(c.motionCfg, sink,
			motion.WithPreview(c.preview),
			motion.WithLoggerFactory(c.loggerFactory))
		g.pacer = motion.NewPacer(g.gate.Config().FrameInterval, c.now)
	}
	c.gen = g

	if err := g.capturer.Start(startCtx, c.surface, cadence, c.route(g, sink)); err != nil {
		c.log.Errorf("start %s: %v", role, err)
		if serr := c.stop(); serr != nil {
			c.log.Errorf("rollback %s: %v", role, serr)
		}
		return err
	}

	c.setState(StateActive)
	go c.watchLoss(g)
	c.log.Infof("%s active at %d fps", role, cadence)
	return nil
}

// stop runs with opMu held.
func (c *Controller) stop() error {
	g := c.gen
	if g == nil {
		c.setState(StateIdle)
		return nil
	}
	c.setState(StateStopping)

	close(g.quit)
	err := g.capturer.Stop()
	// A frame already handed to the route may still be in flight. When the
	// sink itself is stopping us, that frame is this call and the loop
	// exits as soon as it returns.
	if g.delivering.Load() == 0 {
		select {
		case <-g.capturer.Done():
		case <-time.After(drainTimeout):
			c.log.Warnf("%s sampling loop still delivering after stop", g.capturer.Role())
		}
	}
	if g.gate != nil {
		g.gate.Reset()
		g.pacer.Reset()
	}
	if c.preview != nil {
		c.preview.Clear()
	}
	c.gen = nil

	c.setState(StateIdle)
	return err
}

// route returns the frame callback for one generation. Camera frames are
// paced and gated; screen frames go straight to the sink.
func (c *Controller) route(g *generation, sink transport.FrameSender) func(capture.Frame) {
	if g.gate != nil {
		return func(f capture.Frame) {
			g.delivering.Add(1)
			defer g.delivering.Add(-1)
			if !g.pacer.Allow() {
				return
			}
			g.gate.Offer(f)
		}
	}
	return func(f capture.Frame) {
		g.delivering.Add(1)
		defer g.delivering.Add(-1)
		if err := sink.SendFrame(transport.Message{MediaType: f.MediaType, Payload: f.Payload}); err != nil {
			c.log.Warnf("sink rejected frame %d: %v", f.Seq, err)
		}
	}
}

// watchLoss returns the controller to Idle when the device goes away.
func (c *Controller) watchLoss(g *generation) {
	select {
	case <-g.quit:
		return
	case <-g.capturer.Lost():
	}

	c.opMu.Lock()
	defer c.unlockOp()
	if c.gen != g {
		return
	}
	c.log.Warnf("%s lost, session stopped", c.Role())
	if err := c.stop(); err != nil {
		c.log.Errorf("stop after device loss: %v", err)
	}
}

func (c *Controller) setRole(r device.Role) {
	c.mu.Lock()
	c.role = r
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.pending = append(c.pending, s)
	}
}

// unlockOp releases opMu and then delivers queued state changes. Only one
// goroutine delivers at a time; a listener that re-enters the controller
// queues its transitions for the loop already running.
func (c *Controller) unlockOp() {
	c.opMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifying {
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		fn := c.onState
		c.mu.Unlock()
		fn(s)
		c.mu.Lock()
	}
	c.notifying = false
}
