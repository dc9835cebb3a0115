package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/image/draw"

	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/encoder"
)

const (
	DefaultWidth           = 640
	DefaultHeight          = 480
	DefaultPlaybackTimeout = 10 * time.Second
)

// Option configures a Capturer.
type Option func(*Capturer)

// WithResolution sets the preferred (ideal) capture resolution.
func WithResolution(width, height int) Option {
	return func(c *Capturer) {
		c.width = width
		c.height = height
	}
}

// WithEncoder replaces the default JPEG encoder.
func WithEncoder(enc encoder.Encoder) Option {
	return func(c *Capturer) { c.enc = enc }
}

// WithQuality sets the encoder quality factor (1-100).
func WithQuality(q int) Option {
	return func(c *Capturer) { c.quality = q }
}

// WithMinPayloadSize sets the validation lower bound for payload length.
func WithMinPayloadSize(n int) Option {
	return func(c *Capturer) { c.minPayload = n }
}

// WithPlaybackTimeout bounds how long Start waits for the surface to
// present its first frame.
func WithPlaybackTimeout(d time.Duration) Option {
	return func(c *Capturer) { c.playTimeout = d }
}

// WithLoggerFactory sets the logger factory.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Capturer) { c.log = f.NewLogger("capture") }
}

// Capturer owns one device acquisition, the surface it is attached to and
// the raster frames are drawn into. A Capturer is single use: once stopped
// it cannot be started again.
type Capturer struct {
	provider    device.Provider
	role        device.Role
	width       int
	height      int
	quality     int
	minPayload  int
	playTimeout time.Duration
	enc         encoder.Encoder
	log         logging.LeveledLogger

	mu       sync.Mutex
	started  bool
	armed    bool
	surface  device.Surface
	stream   device.Stream
	tracks   []device.Track
	settings device.Settings
	cadence  int

	stopped  atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	lost     chan struct{}
	lostOnce sync.Once

	// rasterMu confines the scratch raster to one tick at a time; Stop
	// takes it to drop the buffer.
	rasterMu sync.Mutex
	raster   *image.RGBA

	seq      atomic.Uint64
	ticks    atomic.Uint64
	notReady atomic.Uint64
	emitted  atomic.Uint64
	invalid  atomic.Uint64
	failed   atomic.Uint64
}

// New creates a capturer that will acquire role from provider.
func New(provider device.Provider, role device.Role, opts ...Option) *Capturer {
	c := &Capturer{
		provider:    provider,
		role:        role,
		width:       DefaultWidth,
		height:      DefaultHeight,
		quality:     encoder.DefaultQuality,
		minPayload:  DefaultMinPayloadSize,
		playTimeout: DefaultPlaybackTimeout,
		log:         logging.NewDefaultLoggerFactory().NewLogger("capture"),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		lost:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.enc == nil {
		c.enc = encoder.NewJPEGEncoder(c.quality)
	}
	return c
}

// Start acquires the device at the preferred resolution and cadence,
// attaches it to surface and, once the surface presents frames, arms a
// sampling loop that calls onFrame once per valid frame, in tick order.
//
// On failure every acquired track has been stopped and the error is a
// *StartError (or ErrStopped / ErrAlreadyStarted / ErrInvalidCadence).
func (c *Capturer) Start(ctx context.Context, surface device.Surface, cadence int, onFrame func(Frame)) error {
	if cadence < 1 {
		return ErrInvalidCadence
	}

	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.cadence = cadence
	c.mu.Unlock()

	stream, err := c.provider.Acquire(ctx, device.Constraints{
		Role:      c.role,
		Width:     c.width,
		Height:    c.height,
		FrameRate: cadence,
	})
	if err != nil {
		c.stopQuietly()
		return &StartError{Kind: acquireKind(err), Role: c.role, Err: err}
	}

	tracks := stream.Tracks()
	c.mu.Lock()
	c.stream = stream
	c.tracks = tracks
	c.surface = surface
	c.mu.Unlock()

	// Stop may have run while Acquire was blocked; it could not see the
	// tracks then, so release them here.
	if c.stopped.Load() {
		c.stopTracks(tracks)
		return ErrStopped
	}
	if len(tracks) == 0 {
		c.stopQuietly()
		return &StartError{Kind: KindDeviceUnavailable, Role: c.role, Err: device.ErrNoDevice}
	}

	settings := tracks[0].Settings()
	if settings.FrameRate == 0 {
		settings.FrameRate = cadence
	}
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
	if settings.Width != c.width || settings.Height != c.height {
		c.log.Infof("%s negotiated %dx%d (requested %dx%d)", c.role, settings.Width, settings.Height, c.width, c.height)
	}

	// Stop resets whatever surface it saw, so attach only while it cannot
	// run in between.
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return ErrStopped
	}
	surface.Attach(stream)
	c.mu.Unlock()

	playCtx, cancel := context.WithTimeout(ctx, c.playTimeout)
	err = surface.Play(playCtx)
	cancel()
	if err != nil {
		c.stopQuietly()
		return &StartError{Kind: KindPreviewPlaybackFailed, Role: c.role, Err: err}
	}

	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return ErrStopped
	}
	c.armed = true
	c.mu.Unlock()

	for _, t := range tracks {
		go c.watch(t)
	}
	go c.loop(time.Second/time.Duration(cadence), onFrame)

	c.log.Debugf("%s sampling at %d fps", c.role, cadence)
	return nil
}

// Stop is idempotent and safe to call before Start, during Start, from a
// frame callback and from any goroutine. It halts sampling, stops every
// track, detaches the surface and drops the raster. Every step runs even
// if an earlier one fails; failures are joined under ErrStopFailed.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		return nil
	}
	c.stopped.Store(true)
	close(c.stopCh)
	tracks := c.tracks
	surface := c.surface
	armed := c.armed
	c.tracks = nil
	c.stream = nil
	c.surface = nil
	c.mu.Unlock()

	if !armed {
		c.doneOnce.Do(func() { close(c.done) })
	}

	errs := c.stopTracks(tracks)
	if surface != nil {
		surface.Pause()
		if err := surface.Reset(); err != nil {
			c.log.Errorf("reset surface: %v", err)
			errs = append(errs, fmt.Errorf("reset surface: %w", err))
		}
	}

	c.rasterMu.Lock()
	c.raster = nil
	c.rasterMu.Unlock()

	s := c.Stats()
	c.log.Debugf("%s stopped: ticks=%d emitted=%d not_ready=%d invalid=%d failed=%d",
		c.role, s.Ticks, s.Emitted, s.NotReady, s.Invalid, s.Failed)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStopFailed, errors.Join(errs...))
	}
	return nil
}

func (c *Capturer) stopQuietly() {
	if err := c.Stop(); err != nil {
		c.log.Errorf("rollback after failed start: %v", err)
	}
}

func (c *Capturer) stopTracks(tracks []device.Track) []error {
	var errs []error
	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			c.log.Errorf("stop track %s: %v", t.ID(), err)
			errs = append(errs, fmt.Errorf("stop track %s: %w", t.ID(), err))
		}
	}
	return errs
}

// watch turns an unsolicited track end into a full stop.
func (c *Capturer) watch(t device.Track) {
	select {
	case <-c.stopCh:
		return
	case <-t.Ended():
	}
	if c.stopped.Load() {
		return
	}
	c.log.Warnf("%s track %s ended, stopping capture", c.role, t.ID())
	if err := c.Stop(); err != nil {
		c.log.Errorf("stop after device loss: %v", err)
	}
	c.lostOnce.Do(func() { close(c.lost) })
}

func (c *Capturer) loop(interval time.Duration, onFrame func(Frame)) {
	defer c.doneOnce.Do(func() { close(c.done) })

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			f, ok := c.sample()
			if !ok {
				continue
			}
			if c.stopped.Load() {
				return
			}
			onFrame(f)
		}
	}
}

// sample draws, encodes and validates one frame. A surface without a
// presentable frame makes the tick a no-op.
func (c *Capturer) sample() (f Frame, ok bool) {
	c.ticks.Add(1)

	c.mu.Lock()
	surface := c.surface
	var track device.Track
	if len(c.tracks) > 0 {
		track = c.tracks[0]
	}
	c.mu.Unlock()

	if surface == nil || track == nil || !surface.Ready() {
		c.notReady.Add(1)
		return Frame{}, false
	}
	img := surface.Frame()
	if img == nil {
		c.notReady.Add(1)
		return Frame{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			c.failed.Add(1)
			c.log.Errorf("%v: %v", ErrFrameCaptureFailed, r)
			f, ok = Frame{}, false
		}
	}()

	w, h := track.Settings().Width, track.Settings().Height
	if w <= 0 || h <= 0 {
		b := img.Bounds()
		w, h = b.Dx(), b.Dy()
	}

	c.rasterMu.Lock()
	defer c.rasterMu.Unlock()
	if c.stopped.Load() {
		return Frame{}, false
	}

	raster := c.ensureRaster(w, h)
	drawInto(raster, img)
	data, err := c.enc.Encode(raster)
	if err != nil {
		c.failed.Add(1)
		c.log.Errorf("%v: encode: %v", ErrFrameCaptureFailed, err)
		return Frame{}, false
	}

	f = Frame{
		MediaType:  c.enc.MediaType(),
		Data:       data,
		Payload:    base64.StdEncoding.EncodeToString(data),
		Width:      w,
		Height:     h,
		CapturedAt: time.Now(),
	}
	if err := Validate(f, c.minPayload); err != nil {
		c.invalid.Add(1)
		c.log.Warnf("dropping %s frame: %v", c.role, err)
		return Frame{}, false
	}
	f.Seq = c.seq.Add(1)
	c.emitted.Add(1)
	return f, true
}

// ensureRaster resizes the scratch raster lazily. Callers hold rasterMu.
func (c *Capturer) ensureRaster(w, h int) *image.RGBA {
	if c.raster != nil && c.raster.Rect.Dx() == w && c.raster.Rect.Dy() == h {
		return c.raster
	}
	if c.raster != nil {
		c.log.Infof("%s resolution changed to %dx%d", c.role, w, h)
	}
	c.raster = image.NewRGBA(image.Rect(0, 0, w, h))
	return c.raster
}

func drawInto(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == dst.Rect.Dx() && sb.Dy() == dst.Rect.Dy() {
		draw.Draw(dst, dst.Rect, src, sb.Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, dst.Rect, src, sb, draw.Src, nil)
}

// RasterSize reports the current scratch raster dimensions (0, 0 when
// none is allocated).
func (c *Capturer) RasterSize() (int, int) {
	c.rasterMu.Lock()
	defer c.rasterMu.Unlock()
	if c.raster == nil {
		return 0, 0
	}
	return c.raster.Rect.Dx(), c.raster.Rect.Dy()
}

// Settings returns what the device negotiated at start.
func (c *Capturer) Settings() device.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Capturer) Role() device.Role { return c.role }

func (c *Capturer) Cadence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cadence
}

// Running reports whether the sampling loop is armed and not stopped.
func (c *Capturer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed && !c.stopped.Load()
}

// Lost is closed when a track ended without Stop being called first.
func (c *Capturer) Lost() <-chan struct{} { return c.lost }

// Done is closed once the sampling loop has exited (or was never armed
// and Stop has run).
func (c *Capturer) Done() <-chan struct{} { return c.done }

func (c *Capturer) Stats() Stats {
	return Stats{
		Ticks:    c.ticks.Load(),
		NotReady: c.notReady.Load(),
		Emitted:  c.emitted.Load(),
		Invalid:  c.invalid.Load(),
		Failed:   c.failed.Load(),
	}
}
