package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/camnode/internal/logging"
	"go.uber.org/goleak"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newLoggingWatcher(t *testing.T, initial string, debounce time.Duration, opts ...WatcherOption[logging.Config]) (*Watcher[logging.Config], string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camnode.toml")
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}
	opts = append([]WatcherOption[logging.Config]{WithDebounce[logging.Config](debounce)}, opts...)
	return NewConfigWatcher(path, LoadLoggingConfig, quietLogger(), opts...), path
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsLoggingSection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, path := newLoggingWatcher(t, "[logging]\nlevel = \"info\"\n", 50*time.Millisecond)
	received := make(chan logging.Config, 1)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "[logging]\nlevel = \"debug\"\n\n[logging.modules]\nstream = \"warn\"\n")

	select {
	case cfg := <-received:
		if cfg.Level != "debug" || cfg.Modules["stream"] != "warn" {
			t.Errorf("unexpected reload: %+v", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, path := newLoggingWatcher(t, "[logging]\nlevel = \"info\"\n", 200*time.Millisecond)

	var count atomic.Int32
	var last atomic.Value
	w.OnReload(func(cfg logging.Config) {
		count.Add(1)
		last.Store(cfg.Modules["api"])
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	levels := []string{"debug", "info", "warn", "error"}
	for _, level := range levels {
		rewrite(t, path, fmt.Sprintf("[logging]\napi = %q\n", level))
		time.Sleep(40 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced reload, got %d", got)
	}
	if got, _ := last.Load().(string); got != "error" {
		t.Errorf("expected last api level error, got %q", got)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	w, path := newLoggingWatcher(t, "[logging]\n", 50*time.Millisecond)

	var kept, dropped atomic.Int32
	w.OnReload(func(logging.Config) { kept.Add(1) })
	unsub := w.OnReload(func(logging.Config) { dropped.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "[logging]\nlevel = \"warn\"\n")
	time.Sleep(250 * time.Millisecond)

	unsub()
	rewrite(t, path, "[logging]\nlevel = \"error\"\n")
	time.Sleep(250 * time.Millisecond)

	if kept.Load() != 2 || dropped.Load() != 1 {
		t.Errorf("kept=%d dropped=%d, want 2 and 1", kept.Load(), dropped.Load())
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	errs := make(chan error, 1)
	w, path := newLoggingWatcher(t, "[logging]\n", 50*time.Millisecond,
		WithErrorHandler[logging.Config](func(err error) { errs <- err }))
	w.OnReload(func(logging.Config) { t.Error("handler must not run on parse error") })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "[logging\nlevel = ")

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestWatcherConcurrentSubscribe(t *testing.T) {
	w, path := newLoggingWatcher(t, "[logging]\n", 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := w.OnReload(func(logging.Config) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}
	for i := range 5 {
		rewrite(t, path, fmt.Sprintf("[logging]\nmod%d = \"debug\"\n", i))
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()
}

func TestWatcherStopIsFinal(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, path := newLoggingWatcher(t, "[logging]\n", 50*time.Millisecond)
	var count atomic.Int32
	w.OnReload(func(logging.Config) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	rewrite(t, path, "[logging]\nlevel = \"debug\"\n")
	time.Sleep(200 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("expected no reloads after Stop, got %d", got)
	}
}

func TestWatcherSeesAtomicReplace(t *testing.T) {
	w, path := newLoggingWatcher(t, "[logging]\nlevel = \"info\"\n", 50*time.Millisecond)
	received := make(chan logging.Config, 1)
	w.OnReload(func(cfg logging.Config) { received <- cfg })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	tmp := filepath.Join(filepath.Dir(path), ".camnode.toml.tmp")
	rewrite(t, tmp, "[logging]\nlevel = \"warn\"\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Level != "warn" {
			t.Errorf("level = %q, want warn", cfg.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherIgnoresUnrelatedEdits(t *testing.T) {
	w, path := newLoggingWatcher(t, "[logging]\nlevel = \"info\"\n", 50*time.Millisecond)
	var count atomic.Int32
	w.OnReload(func(logging.Config) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "[logging]\nlevel = \"info\"\n\n[camera]\nid = \"cam7\"\n")
	rewrite(t, filepath.Join(filepath.Dir(path), "other.toml"), "[logging]\nlevel = \"debug\"\n")
	time.Sleep(300 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reloads, got %d", got)
	}
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w, _ := newLoggingWatcher(t, "[logging]\n", 50*time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}
