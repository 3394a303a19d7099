package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/smazurov/camnode/internal/acquisition"
	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/features"
	"github.com/smazurov/camnode/internal/stream"
)

func newGateway(t *testing.T, opts ...Option) (*Gateway, *acquisition.Simulator) {
	t.Helper()

	sim := acquisition.NewSimulator(
		acquisition.WithResolution(4, 2),
		acquisition.WithPixelFormats("Mono8", "Mono8", "Mono12", "BayerRG8"),
	)
	var ctrl *stream.Controller
	store := features.NewStore(sim, func() bool { return ctrl.Streaming() })
	ctrl = stream.NewController(sim, store, stream.WithCameraID("gw-"+t.Name()))

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx, nil)
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})

	return New(ctrl, opts...), sim
}

func TestStreamStartIsIdempotent(t *testing.T) {
	gw, sim := newGateway(t)
	ctx := context.Background()

	for i := range 2 {
		if status := gw.StreamStart(ctx); !status.OK() {
			t.Fatalf("StreamStart #%d = %+v", i+1, status)
		}
	}
	if res := gw.Status(ctx); !res.Streaming || !res.Error.OK() {
		t.Errorf("Status = %+v, want streaming", res)
	}
	if sim.StartCalls() != 1 {
		t.Errorf("backend start calls = %d, want 1", sim.StartCalls())
	}

	if status := gw.StreamStop(ctx); !status.OK() {
		t.Fatalf("StreamStop = %+v", status)
	}
	if res := gw.Status(ctx); res.Streaming {
		t.Error("expected idle after stop")
	}
}

func TestFeatureEnumInfoGet(t *testing.T) {
	gw, _ := newGateway(t)

	res := gw.FeatureEnumInfoGet(context.Background(), acquisition.FeaturePixelFormat)
	want := EnumInfoResult{
		AvailableValues: []string{"Mono8", "Mono12", "BayerRG8"},
		Current:         "Mono8",
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	missing := gw.FeatureEnumInfoGet(context.Background(), "Nope")
	if missing.Error.Code != int(camerr.CodeNotFound) {
		t.Errorf("unknown feature code = %d, want %d", missing.Error.Code, camerr.CodeNotFound)
	}
	if missing.AvailableValues == nil {
		t.Error("available_values should be an empty list, not nil")
	}
}

func TestFeatureEnumSetErrorCodes(t *testing.T) {
	gw, _ := newGateway(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		streaming bool
		value     string
		want      int
	}{
		{"empty value", false, "", -11},
		{"unsupported value", false, "RGB8", -11},
		{"valid value", false, "Mono12", 0},
		{"valid value while streaming", true, "Mono8", -15},
		{"empty value while streaming", true, "", -15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.streaming {
				gw.StreamStart(ctx)
				defer gw.StreamStop(ctx)
			}
			status := gw.FeatureEnumSet(ctx, acquisition.FeaturePixelFormat, tt.value)
			if status.Code != tt.want {
				t.Errorf("FeatureEnumSet(%q) = %+v, want code %d", tt.value, status, tt.want)
			}
			if (status.Code == 0) != (status.Text == "") {
				t.Errorf("text must be empty exactly on success: %+v", status)
			}
		})
	}
}

func TestBackendErrorPassesThrough(t *testing.T) {
	gw, sim := newGateway(t)
	sim.FailStart(camerr.New(camerr.CodeDeviceNotOpen, "device not open"))

	status := gw.StreamStart(context.Background())
	if status.Code != int(camerr.CodeDeviceNotOpen) {
		t.Errorf("code = %d, want %d", status.Code, camerr.CodeDeviceNotOpen)
	}
	if gw.Status(context.Background()).Streaming {
		t.Error("failed start must leave the camera idle")
	}
}

func TestCommandTimeout(t *testing.T) {
	gw, sim := newGateway(t, WithTimeout(30*time.Millisecond))
	sim.SetLatency(500 * time.Millisecond)

	start := time.Now()
	status := gw.StreamStart(context.Background())
	if status.Code != int(camerr.CodeTimeout) {
		t.Fatalf("code = %d, want %d (%s)", status.Code, camerr.CodeTimeout, status.Text)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("timeout took %v", elapsed)
	}
	if gw.Status(context.Background()).Streaming {
		t.Error("timed out start must not report streaming")
	}
}

type stuckController struct{}

func (stuckController) Start(ctx context.Context) error {
	<-ctx.Done()
	return camerr.Wrap(camerr.CodeTimeout, "command did not complete", ctx.Err())
}
func (stuckController) Stop(context.Context) error { return nil }
func (stuckController) Status() stream.Status { return stream.Status{Streaming: true} }
func (stuckController) FeatureInfo(context.Context, string) (features.Descriptor, error) {
	return features.Descriptor{}, nil
}
func (stuckController) SetFeature(context.Context, string, string) error { return nil }

func TestStatusDoesNotWaitOnController(t *testing.T) {
	gw := New(stuckController{}, WithTimeout(time.Second))

	done := make(chan StatusResult, 1)
	go func() { done <- gw.Status(context.Background()) }()

	select {
	case res := <-done:
		if !res.Streaming || !res.Error.OK() {
			t.Errorf("Status = %+v", res)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Status blocked")
	}
}

func TestStuckControllerTimesOut(t *testing.T) {
	gw := New(stuckController{}, WithTimeout(20*time.Millisecond))
	if status := gw.StreamStart(context.Background()); status.Code != int(camerr.CodeTimeout) {
		t.Errorf("code = %d, want timeout", status.Code)
	}
}

// flippingController changes state between every Status call.
type flippingController struct {
	stuckController
	calls *atomic.Int32
}

func (f flippingController) Status() stream.Status {
	if f.calls.Add(1)%2 == 1 {
		return stream.Status{Streaming: true, Source: stream.SourceExplicit}
	}
	return stream.Status{}
}

func TestStatusIsOneSnapshot(t *testing.T) {
	gw := New(flippingController{calls: new(atomic.Int32)}, WithTimeout(time.Second))

	for range 10 {
		res := gw.Status(context.Background())
		if res.Streaming != (res.Source != "") {
			t.Fatalf("Status = %+v, streaming and source disagree", res)
		}
		if res.Streaming && res.Source != "explicit" {
			t.Errorf("source = %q, want explicit", res.Source)
		}
	}
}
