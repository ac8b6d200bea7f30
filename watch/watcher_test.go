package watch_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/store/memory"
	"github.com/xraph/foreman/watch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher builds and starts a watcher over root with a short
// debounce, stopping it when the test ends.
func startWatcher(t *testing.T, root string, opts ...watch.Option) *event.Bus {
	t.Helper()

	events := event.NewBus(memory.New())
	base := []watch.Option{
		watch.WithDebounce(20 * time.Millisecond),
		watch.WithLogger(discardLogger()),
	}
	w, err := watch.New(events, []string{root}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err := w.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return events
}

// claimUntil polls the bus until a FileChanged payload satisfies want.
func claimUntil(t *testing.T, events *event.Bus, want func(event.FileChangedPayload) bool) event.FileChangedPayload {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		evt, err := events.Claim(context.Background())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if evt == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if evt.Kind != event.KindFileChanged {
			t.Fatalf("kind = %q, want file_changed", evt.Kind)
		}
		var p event.FileChangedPayload
		if err := evt.Decode(&p); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if want(p) {
			return p
		}
	}
	t.Fatal("timed out waiting for a matching file event")
	return event.FileChangedPayload{}
}

// drain claims every event published within the window.
func drain(t *testing.T, events *event.Bus, window time.Duration) []event.FileChangedPayload {
	t.Helper()

	var out []event.FileChangedPayload
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		evt, err := events.Claim(context.Background())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if evt == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		var p event.FileChangedPayload
		if err := evt.Decode(&p); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func TestWatcher_PublishesChange(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	events := startWatcher(t, root)

	write(t, filepath.Join(root, "main.go"), "package main\n")

	p := claimUntil(t, events, func(p event.FileChangedPayload) bool {
		return p.Path == "main.go"
	})
	if p.Op != "create" && p.Op != "write" {
		t.Fatalf("op = %q, want create or write", p.Op)
	}
}

func TestWatcher_DebounceCoalescesBurst(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	events := startWatcher(t, root)

	path := filepath.Join(root, "service.go")
	for i := 0; i < 5; i++ {
		write(t, path, strings.Repeat("x", i+1))
		time.Sleep(time.Millisecond)
	}

	got := drain(t, events, 500*time.Millisecond)
	if len(got) == 0 {
		t.Fatal("burst produced no events")
	}
	if len(got) >= 5 {
		t.Fatalf("burst produced %d events, want the writes coalesced", len(got))
	}
	for _, p := range got {
		if p.Path != "service.go" {
			t.Fatalf("unexpected path %q", p.Path)
		}
	}
}

func TestWatcher_GlobFilter(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	events := startWatcher(t, root, watch.WithGlobs("**/*.go"))

	write(t, filepath.Join(root, "pkg", "handler.go"), "package pkg\n")
	write(t, filepath.Join(root, "README.md"), "# readme\n")

	got := drain(t, events, 500*time.Millisecond)
	if len(got) == 0 {
		t.Fatal("go file change was filtered out")
	}
	for _, p := range got {
		if p.Path != filepath.Join("pkg", "handler.go") {
			t.Fatalf("glob let %q through", p.Path)
		}
	}
}

func TestWatcher_ExcludedDirsIgnored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	for _, dir := range []string{".git", "node_modules"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
	}
	events := startWatcher(t, root)

	write(t, filepath.Join(root, ".git", "config"), "[core]\n")
	write(t, filepath.Join(root, "node_modules", "index.js"), "module.exports = {}\n")
	write(t, filepath.Join(root, "app.go"), "package app\n")

	got := drain(t, events, 500*time.Millisecond)
	var sawApp bool
	for _, p := range got {
		if strings.Contains(p.Path, ".git") || strings.Contains(p.Path, "node_modules") {
			t.Fatalf("excluded path published: %q", p.Path)
		}
		if p.Path == "app.go" {
			sawApp = true
		}
	}
	if !sawApp {
		t.Fatal("expected the non-excluded file to publish")
	}
}

func TestWatcher_HiddenFileIgnored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	events := startWatcher(t, root)

	write(t, filepath.Join(root, ".env"), "SECRET=1\n")
	write(t, filepath.Join(root, "app.go"), "package app\n")

	got := drain(t, events, 500*time.Millisecond)
	var sawApp bool
	for _, p := range got {
		if p.Path == ".env" {
			t.Fatal("hidden file published")
		}
		if p.Path == "app.go" {
			sawApp = true
		}
	}
	if !sawApp {
		t.Fatal("expected the visible file to publish")
	}
}

func TestWatcher_RemovePublished(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	events := startWatcher(t, root)

	path := filepath.Join(root, "scratch.txt")
	write(t, path, "tmp")
	claimUntil(t, events, func(p event.FileChangedPayload) bool {
		return p.Path == "scratch.txt"
	})

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	claimUntil(t, events, func(p event.FileChangedPayload) bool {
		return p.Path == "scratch.txt" && p.Op == "remove"
	})
}

func TestWatcher_NewDirectoryWatched(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	events := startWatcher(t, root)

	sub := filepath.Join(root, "generated")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// Give the watcher a tick to attach to the new directory.
	time.Sleep(100 * time.Millisecond)

	write(t, filepath.Join(sub, "out.go"), "package generated\n")

	claimUntil(t, events, func(p event.FileChangedPayload) bool {
		return p.Path == filepath.Join("generated", "out.go")
	})
}
