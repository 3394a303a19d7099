package acquisition

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/pixfmt"
)

// Test patterns produced by the simulator.
const (
	PatternOff        = "Off"
	PatternHorizontal = "GreyHorizontalRamp"
	PatternVertical   = "GreyVerticalRamp"
	PatternMoving     = "GreyDiagonalRampMoving"
)

var defaultPixelFormats = []string{
	"Mono8", "Mono10", "Mono12", "Mono16",
	"RGB8", "BGR8", "RGBa8", "BGRa8",
	"BayerRG8", "BayerRG10", "BayerRG12", "BayerRG16",
	"BayerBG8", "BayerBG10", "BayerBG12", "BayerBG16",
	"BayerGB8", "BayerGB10", "BayerGB12", "BayerGB16",
	"BayerGR8", "BayerGR10", "BayerGR12", "BayerGR16",
	"YCbCr422_8",
}

var defaultPatterns = []string{PatternOff, PatternHorizontal, PatternVertical, PatternMoving}

// Simulator is an in-process Backend that generates test pattern frames on
// a ticker. It counts start/stop calls and allows injecting failures.
type Simulator struct {
	width     int
	height    int
	frameRate float64
	logger    *slog.Logger

	mu       sync.Mutex
	enums    map[string]*EnumInfo
	sink     FrameSink
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	startErr error
	stopErr  error
	setErr   error
	delay    time.Duration

	startCalls atomic.Int64
	stopCalls  atomic.Int64
	frames     atomic.Uint64
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithResolution sets the generated frame size.
func WithResolution(width, height int) SimulatorOption {
	return func(s *Simulator) {
		s.width = width
		s.height = height
	}
}

// WithFrameRate sets frames per second.
func WithFrameRate(fps float64) SimulatorOption {
	return func(s *Simulator) {
		s.frameRate = fps
	}
}

// WithPixelFormats replaces the advertised pixel formats. The first entry
// becomes the current value unless initial is one of them.
func WithPixelFormats(initial string, allowed ...string) SimulatorOption {
	return func(s *Simulator) {
		if len(allowed) == 0 {
			return
		}
		current := allowed[0]
		if slices.Contains(allowed, initial) {
			current = initial
		}
		s.enums[FeaturePixelFormat] = &EnumInfo{Current: current, Allowed: slices.Clone(allowed)}
	}
}

// WithLogger sets the simulator logger.
func WithLogger(logger *slog.Logger) SimulatorOption {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// NewSimulator creates a simulated camera.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		width:     640,
		height:    480,
		frameRate: 15,
		logger:    slog.Default(),
		enums: map[string]*EnumInfo{
			FeaturePixelFormat: {Current: defaultPixelFormats[0], Allowed: slices.Clone(defaultPixelFormats)},
			FeatureTestPattern: {Current: PatternMoving, Allowed: slices.Clone(defaultPatterns)},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.frameRate <= 0 {
		s.frameRate = 15
	}
	return s
}

// SetFrameSink installs the frame receiver. It takes effect on the next Start.
func (s *Simulator) SetFrameSink(sink FrameSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Start begins generating frames.
func (s *Simulator) Start(ctx context.Context) error {
	s.startCalls.Add(1)

	s.mu.Lock()
	delay, injected := s.delay, s.startErr
	s.mu.Unlock()

	if err := s.wait(ctx, delay); err != nil {
		return err
	}
	if injected != nil {
		return injected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return camerr.New(camerr.CodeInvalidCall, "acquisition already running")
	}

	format, ok := pixfmt.Lookup(s.enums[FeaturePixelFormat].Current)
	if !ok {
		return camerr.Newf(camerr.CodeInvalidValue, "unsupported pixel format %q", s.enums[FeaturePixelFormat].Current)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx, s.done, format, s.enums[FeatureTestPattern].Current, s.sink)

	s.logger.Debug("Acquisition started", "pixel_format", format.Name, "width", s.width, "height", s.height)
	return nil
}

// Stop halts frame generation and waits for the generator to exit.
func (s *Simulator) Stop(ctx context.Context) error {
	s.stopCalls.Add(1)

	s.mu.Lock()
	delay, injected := s.delay, s.stopErr
	s.mu.Unlock()

	if err := s.wait(ctx, delay); err != nil {
		return err
	}
	if injected != nil {
		return injected
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return camerr.New(camerr.CodeInvalidCall, "acquisition not running")
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Debug("Acquisition stopped")
	return nil
}

// EnumInfo reports the current and allowed values of an enumeration.
func (s *Simulator) EnumInfo(_ context.Context, name string) (EnumInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.enums[name]
	if !ok {
		return EnumInfo{}, camerr.Newf(camerr.CodeNotFound, "feature %q not found", name)
	}
	return EnumInfo{Current: info.Current, Allowed: slices.Clone(info.Allowed)}, nil
}

// SetEnum writes an enumeration value. Like a real device the simulator
// locks layout features while acquiring.
func (s *Simulator) SetEnum(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.enums[name]
	if !ok {
		return camerr.Newf(camerr.CodeNotFound, "feature %q not found", name)
	}
	if s.running {
		return camerr.Newf(camerr.CodeInvalidCall, "feature %q is locked while acquiring", name)
	}
	if s.setErr != nil {
		return s.setErr
	}
	if !slices.Contains(info.Allowed, value) {
		return camerr.Newf(camerr.CodeInvalidValue, "value %q not allowed for %s", value, name)
	}
	info.Current = value
	return nil
}

// Running reports whether frames are being generated.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartCalls returns how many times Start was called.
func (s *Simulator) StartCalls() int {
	return int(s.startCalls.Load())
}

// StopCalls returns how many times Stop was called.
func (s *Simulator) StopCalls() int {
	return int(s.stopCalls.Load())
}

// FramesGenerated returns the total number of frames produced.
func (s *Simulator) FramesGenerated() uint64 {
	return s.frames.Load()
}

// FailStart makes every following Start return err. nil clears it.
func (s *Simulator) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// FailStop makes every following Stop return err. nil clears it.
func (s *Simulator) FailStop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopErr = err
}

// FailSetEnum makes every following SetEnum return err. nil clears it.
func (s *Simulator) FailSetEnum(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

// SetLatency delays Start and Stop, emulating slow hardware.
func (s *Simulator) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) run(ctx context.Context, done chan struct{}, format pixfmt.Format, pattern string, sink FrameSink) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.frameRate))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			frame := Frame{
				Sequence:    seq,
				Timestamp:   now,
				Width:       s.width,
				Height:      s.height,
				PixelFormat: format.Name,
				Step:        format.Step(s.width),
				Data:        make([]byte, format.FrameSize(s.width, s.height)),
			}
			fillPattern(frame.Data, frame.Step, pattern, seq)
			s.frames.Add(1)
			if sink != nil {
				sink(frame)
			}
		}
	}
}

func fillPattern(data []byte, step int, pattern string, seq uint64) {
	if step == 0 {
		return
	}
	for i := range data {
		x, y := i%step, i/step
		switch pattern {
		case PatternHorizontal:
			data[i] = byte(x)
		case PatternVertical:
			data[i] = byte(y)
		case PatternMoving:
			data[i] = byte(x + y + int(seq))
		}
	}
}
