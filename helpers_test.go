package fluffy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinkershack/fluffy-go/internal/ztest"
)

func eventSeparator() { time.Sleep(50 * time.Millisecond) }
func waitForEvents()  { time.Sleep(300 * time.Millisecond) }

// collector is a SinkFunc that appends every delivered event to a slice,
// safe for concurrent use by the worker goroutine and the test goroutine.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func newCollector() *collector { return &collector{} }

func (c *collector) sink(e Event, _ any) int {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return 0
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// openHandle starts a Context against c.sink and registers cleanup to
// destroy it at the end of the test.
func openHandle(t *testing.T, c *collector) Handle {
	t.Helper()
	h, err := Init(c.sink, nil)
	if err != nil {
		t.Fatalf("Init: %s", err)
	}
	t.Cleanup(func() { _ = Destroy(h) })
	return h
}

// hasEvent reports whether any collected event matches path and carries
// every bit in want.
func hasEvent(events []Event, path string, want Mask) bool {
	for _, e := range events {
		if e.Path == path && e.Mask.Has(want) {
			return true
		}
	}
	return false
}

func describeEvents(events []Event) string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.String()
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

// withoutEvent returns events with every entry matching path/want removed.
func withoutEvent(events []Event, path string, want Mask) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Path == path && e.Mask.Has(want) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir %s: %s", path, err)
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write %s: %s", path, err)
	}
}

func mustRemove(t *testing.T, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("remove %s: %s", path, err)
	}
}

func mustRename(t *testing.T, from, to string) {
	t.Helper()
	if err := os.Rename(from, to); err != nil {
		t.Fatalf("rename %s -> %s: %s", from, to, err)
	}
}

func joinPath(parts ...string) string { return filepath.Join(parts...) }

// requireEvent fails the test with a unified diff between the events
// collected and the same set with the wanted event folded in, unless that
// event is already present.
func requireEvent(t *testing.T, events []Event, path string, want Mask, why string) {
	t.Helper()
	if hasEvent(events, path, want) {
		return
	}
	have := describeEvents(events)
	wanted := append(append([]Event{}, events...), Event{Mask: want, Path: path})
	t.Fatalf("%s:%s", why, ztest.Diff(have, describeEvents(wanted)))
}

// refuteEvent fails the test with a unified diff isolating the unwanted
// event, if any event matching path/want was collected.
func refuteEvent(t *testing.T, events []Event, path string, want Mask, why string) {
	t.Helper()
	if !hasEvent(events, path, want) {
		return
	}
	have := describeEvents(events)
	wanted := describeEvents(withoutEvent(events, path, want))
	t.Fatalf("%s:%s", why, ztest.Diff(have, wanted))
}
