package stream

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/camnode/internal/acquisition"
	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/discovery"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/features"
	"go.uber.org/goleak"
)

type fixture struct {
	sim      *acquisition.Simulator
	ctrl     *Controller
	presence chan discovery.Presence
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, autostart bool, opts ...Option) *fixture {
	t.Helper()

	sim := acquisition.NewSimulator(acquisition.WithResolution(4, 2), acquisition.WithFrameRate(30))
	var ctrl *Controller
	store := features.NewStore(sim, func() bool { return ctrl.Streaming() })
	opts = append([]Option{WithCameraID("test-" + t.Name()), WithAutostart(autostart)}, opts...)
	ctrl = NewController(sim, store, opts...)

	f := &fixture{sim: sim, ctrl: ctrl, presence: make(chan discovery.Presence)}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go ctrl.Run(ctx, f.presence)

	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return f
}

func (f *fixture) stop() {
	f.cancel()
	<-f.ctrl.Done()
}

type step func(context.Context, *Controller) error

func start(ctx context.Context, c *Controller) error { return c.Start(ctx) }
func stop(ctx context.Context, c *Controller) error { return c.Stop(ctx) }

func presence(p bool) step {
	return func(ctx context.Context, c *Controller) error { return c.Presence(ctx, p) }
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		autostart bool
		steps     []step
		want      State
		starts    int
		stops     int
	}{
		{"idle explicit start", true, []step{start}, Streaming{SourceExplicit}, 1, 0},
		{"idle presence true with autostart", true, []step{presence(true)}, Streaming{SourceAutomatic}, 1, 0},
		{"idle presence true without autostart", false, []step{presence(true)}, Idle{}, 0, 0},
		{"explicit stream explicit stop", true, []step{start, stop}, Idle{}, 1, 1},
		{"automatic stream explicit stop", true, []step{presence(true), stop}, Idle{}, 1, 1},
		{"automatic stream presence false", true, []step{presence(true), presence(false)}, Idle{}, 1, 1},
		{"explicit stream presence false", true, []step{start, presence(false)}, Streaming{SourceExplicit}, 1, 0},
		{"automatic stream upgraded by explicit start", true, []step{presence(true), start}, Streaming{SourceExplicit}, 1, 0},
		{"explicit stream explicit start", true, []step{start, start}, Streaming{SourceExplicit}, 1, 0},
		{"upgraded stream survives presence loss", true, []step{presence(true), start, presence(false)}, Streaming{SourceExplicit}, 1, 0},
		{"idle explicit stop", true, []step{stop}, Idle{}, 0, 0},
		{"idle presence false", true, []step{presence(false)}, Idle{}, 0, 0},
		{"streaming presence true", true, []step{start, presence(true)}, Streaming{SourceExplicit}, 1, 0},
		{"no autostart explicit stream presence false", false, []step{start, presence(true), presence(false)}, Streaming{SourceExplicit}, 1, 0},
		{"stop twice", true, []step{start, stop, stop}, Idle{}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.autostart)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			for i, s := range tt.steps {
				if err := s(ctx, f.ctrl); err != nil {
					t.Fatalf("step %d failed: %v", i, err)
				}
			}

			if diff := cmp.Diff(tt.want, f.ctrl.State()); diff != "" {
				t.Errorf("state mismatch (-want +got):\n%s", diff)
			}
			if got := f.sim.StartCalls(); got != tt.starts {
				t.Errorf("backend starts = %d, want %d", got, tt.starts)
			}
			if got := f.sim.StopCalls(); got != tt.stops {
				t.Errorf("backend stops = %d, want %d", got, tt.stops)
			}
			if f.sim.Running() != f.ctrl.Streaming() {
				t.Errorf("backend running=%v but controller streaming=%v", f.sim.Running(), f.ctrl.Streaming())
			}
		})
	}
}

func TestExplicitStartFailureLeavesIdle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	boom := camerr.New(camerr.CodeDeviceNotOpen, "device disconnected")
	f.sim.FailStart(boom)

	err := f.ctrl.Start(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Start = %v, want backend error unchanged", err)
	}
	if f.ctrl.Streaming() {
		t.Fatal("failed start must not update state")
	}

	f.sim.FailStart(nil)
	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start after recovery: %v", err)
	}
	if !f.ctrl.Streaming() {
		t.Error("expected streaming after recovery")
	}
}

func TestExplicitStopFailureKeepsStreaming(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	f.sim.FailStop(camerr.New(camerr.CodeOther, "stop failed"))
	if err := f.ctrl.Stop(ctx); camerr.CodeOf(err) != camerr.CodeOther {
		t.Fatalf("Stop = %v, want code Other", err)
	}
	if !f.ctrl.Streaming() {
		t.Fatal("failed stop must not update state")
	}

	f.sim.FailStop(nil)
	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if f.sim.StartCalls() != 1 || f.sim.StopCalls() != 2 {
		t.Errorf("starts=%d stops=%d", f.sim.StartCalls(), f.sim.StopCalls())
	}
}

func TestAutomaticStartFailureRetriesOnNextPresence(t *testing.T) {
	bus := events.New()
	errs := make(chan events.StreamErrorEvent, 4)
	unsub := bus.Subscribe(func(e events.StreamErrorEvent) { errs <- e })
	defer unsub()

	f := newFixture(t, true, WithEventBus(bus))
	ctx := context.Background()

	f.sim.FailStart(camerr.New(camerr.CodeDeviceNotOpen, "not connected"))
	if err := f.ctrl.Presence(ctx, true); err != nil {
		t.Fatalf("Presence returned %v, background failures must not surface", err)
	}
	if f.ctrl.Streaming() {
		t.Fatal("failed automatic start must stay idle")
	}

	select {
	case e := <-errs:
		if e.Action != "start" || e.Code != int(camerr.CodeDeviceNotOpen) {
			t.Errorf("unexpected error event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("StreamErrorEvent not published")
	}

	// No retry until the next qualifying presence event.
	time.Sleep(50 * time.Millisecond)
	if got := f.sim.StartCalls(); got != 1 {
		t.Fatalf("start calls = %d, want 1 (no tight retry)", got)
	}

	f.sim.FailStart(nil)
	f.ctrl.Presence(ctx, false)
	f.ctrl.Presence(ctx, true)
	if diff := cmp.Diff(State(Streaming{SourceAutomatic}), f.ctrl.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if got := f.sim.StartCalls(); got != 2 {
		t.Errorf("start calls = %d, want 2", got)
	}
}

func TestAutomaticStopFailureKeepsStreaming(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.ctrl.Presence(ctx, true)
	f.sim.FailStop(errors.New("usb reset"))
	f.ctrl.Presence(ctx, false)

	if diff := cmp.Diff(State(Streaming{SourceAutomatic}), f.ctrl.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	f.sim.FailStop(nil)
	f.ctrl.Presence(ctx, true)
	f.ctrl.Presence(ctx, false)
	if f.ctrl.Streaming() {
		t.Error("expected idle after next presence loss")
	}
}

func TestFeatureChangesGatedOnStreaming(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.ctrl.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for _, value := range []string{"Mono8", "", "NotAFormat"} {
		err := f.ctrl.SetFeature(ctx, acquisition.FeaturePixelFormat, value)
		if !camerr.Is(err, camerr.CodeInvalidOperation) {
			t.Errorf("SetFeature(%q) while streaming = %v, want InvalidOperation", value, err)
		}
	}

	if err := f.ctrl.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.SetFeature(ctx, acquisition.FeaturePixelFormat, ""); !camerr.Is(err, camerr.CodeInvalidValue) {
		t.Errorf("SetFeature(\"\") = %v, want InvalidValue", err)
	}
	if err := f.ctrl.SetFeature(ctx, acquisition.FeaturePixelFormat, "BayerRG12"); err != nil {
		t.Fatalf("SetFeature(BayerRG12) = %v", err)
	}

	desc, err := f.ctrl.FeatureInfo(ctx, acquisition.FeaturePixelFormat)
	if err != nil {
		t.Fatal(err)
	}
	if desc.Current != "BayerRG12" {
		t.Errorf("Current = %q, want BayerRG12", desc.Current)
	}
}

func TestCommandTimeoutDoesNotChangeState(t *testing.T) {
	f := newFixture(t, false)
	f.sim.SetLatency(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.ctrl.Start(ctx)
	if got := camerr.CodeOf(err); got != camerr.CodeTimeout {
		t.Fatalf("Start code = %v, want Timeout (err=%v)", got, err)
	}
	if f.ctrl.Streaming() {
		t.Error("timed out start must not commit Streaming")
	}
}

func TestConcurrentCommandsAreSerialized(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(i), 42))
			for range 25 {
				var err error
				switch r.IntN(4) {
				case 0:
					err = f.ctrl.Start(ctx)
				case 1:
					err = f.ctrl.Stop(ctx)
				case 2:
					err = f.ctrl.Presence(ctx, true)
				case 3:
					err = f.ctrl.Presence(ctx, false)
				}
				if err != nil {
					errs <- err
				}
				_ = f.ctrl.Status()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("command failed, backend saw overlapping calls: %v", err)
	}

	diff := f.sim.StartCalls() - f.sim.StopCalls()
	want := 0
	if f.ctrl.Streaming() {
		want = 1
	}
	if diff != want {
		t.Errorf("starts-stops = %d, want %d", diff, want)
	}
	if f.sim.Running() != f.ctrl.Streaming() {
		t.Error("backend and controller disagree")
	}
}

func TestPresenceChannelDrivesController(t *testing.T) {
	f := newFixture(t, true)

	f.presence <- discovery.Presence{Present: true, Subscribers: 1}
	waitFor(t, func() bool { return f.ctrl.Streaming() })

	f.presence <- discovery.Presence{Present: false}
	waitFor(t, func() bool { return !f.ctrl.Streaming() })
}

func TestShutdownStopsStreamOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t, false)
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.stop()

	if f.sim.Running() {
		t.Error("backend still running after shutdown")
	}
	if f.sim.StopCalls() != 1 {
		t.Errorf("stop calls = %d, want 1", f.sim.StopCalls())
	}
	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after shutdown = %v, want ErrStopped", err)
	}
}

func TestRunTwice(t *testing.T) {
	f := newFixture(t, false)
	if err := f.ctrl.Run(context.Background(), nil); err == nil {
		t.Error("second Run should fail")
	}
}

func TestStateChangesPublished(t *testing.T) {
	bus := events.New()
	changes := make(chan events.StreamStateChangedEvent, 4)
	unsub := bus.Subscribe(func(e events.StreamStateChangedEvent) { changes <- e })
	defer unsub()

	f := newFixture(t, true, WithEventBus(bus), WithCameraID("cam3"))
	ctx := context.Background()
	f.ctrl.Presence(ctx, true)
	f.ctrl.Stop(ctx)

	want := []events.StreamStateChangedEvent{
		{CameraID: "cam3", Streaming: true, Source: "automatic", Trigger: TriggerPresence},
		{CameraID: "cam3", Streaming: false, Source: "", Trigger: TriggerExplicitStop},
	}
	for i, w := range want {
		select {
		case got := <-changes:
			got.Timestamp = ""
			if diff := cmp.Diff(w, got); diff != "" {
				t.Errorf("event %d mismatch (-want +got):\n%s", i, diff)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not published", i)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
