//go:build linux && !appengine

package fluffy

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/tinkershack/fluffy-go/internal"
	"golang.org/x/sys/unix"
)

// maxBatchBytes sized to comfortably hold the 200-raw-event batch spec.md
// §4.2 describes (the source's own constant), at a per-event size of
// header + PATH_MAX, which exceeds inotify's worst case (header +
// NAME_MAX + 1).
const maxBatchBytes = 200 * (unix.SizeofInotifyEvent + unix.PathMax)

// runLoop is the Context's dedicated worker goroutine (spec.md §4.2, §5).
// Its only suspension point is the readiness multiplexer; everything else
// runs to completion without blocking.
func (c *Context) runLoop() {
	var terminal error
	defer func() { c.teardown(terminal) }()

	buf := make([]byte, maxBatchBytes)
	for {
		if c.isShuttingDown() {
			return
		}

		ready, err := c.poller.wait()
		if err != nil {
			terminal = fmt.Errorf("%w: %w", ErrKernelIO, err)
			return
		}
		if !ready {
			if c.isShuttingDown() {
				return
			}
			for _, resp := range c.drainReinitiateQueue() {
				resp <- c.reinitiate()
			}
			continue
		}

		n, err := unix.Read(c.notifierFd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			terminal = fmt.Errorf("%w: %w", ErrKernelIO, err)
			return
		}
		if n <= 0 {
			continue
		}

		if done := c.processBatch(buf[:n]); done {
			c.mu.Lock()
			terminal = c.exitErr
			c.mu.Unlock()
			return
		}
	}
}

// processBatch decodes one read()'s worth of raw inotify events and applies
// handoff + internal transitions to each (spec.md §4.2). Returns true if the
// Context should terminate (sink returned non-zero).
func (c *Context) processBatch(buf []byte) bool {
	var offset uint32
	n := uint32(len(buf))

	for offset+unix.SizeofInotifyEvent <= n {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		mask := uint32(raw.Mask)
		wd := uint32(raw.Wd)
		nameLen := uint32(raw.Len)
		advance := unix.SizeofInotifyEvent + nameLen

		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}
		offset += advance

		if mask&unix.IN_Q_OVERFLOW != 0 {
			if c.deliver(Event{Mask: QueueOverflow, Path: ""}) {
				return true
			}
			c.reinitiate()
			return false // stop processing the rest of this batch
		}

		if c.handleEvent(wd, mask, name) {
			return true
		}
	}
	return false
}

// handleEvent applies the handoff (§4.2.1) and internal-transition (§4.2.2)
// rules to a single decoded raw event. Returns true if the sink terminated
// the Context.
func (c *Context) handleEvent(wd, rawMask uint32, name string) bool {
	entry, ok := c.idx.byIDLookupLocked(c, wd)
	if !ok {
		return false // stale descriptor, already torn down (§4.2 step 1)
	}

	path := entry.Path
	if name != "" {
		path = entry.Path + "/" + name
	}

	m := Mask(rawMask)
	isRoot := c.isRootLocked(entry.Path)

	if internal.DebugEnabled() {
		internal.Debug(path, rawMask)
	}

	suppressed := false

	// Rule 2: SelfMove/SelfDelete on a non-root path is redundant with the
	// parent's Delete/MovedFrom on the child name.
	if (m.Has(RootMove) || m.Has(RootDelete)) && !isRoot {
		suppressed = true
	}

	deliverMask := m
	// Rule 3: Ignored on a root synthesizes RootIgnored(+WatchEmpty).
	if m.Has(Ignored) && isRoot {
		deliverMask |= RootIgnored
		if c.rootCountLocked() == 1 {
			deliverMask |= WatchEmpty
		}
	}

	// Rule 4: a directory event naming a child that already has its own
	// (deeper) watch is redundant; that watch will report it itself.
	if !suppressed && m.Has(IsDir) && !m.Has(Modify) && !m.Has(MovedFrom) && !m.Has(MovedTo) && name != "" {
		if c.isIndexedLocked(path) {
			suppressed = true
		}
	}

	if !suppressed {
		if c.deliver(Event{Mask: deliverMask, Path: path}) {
			return true
		}
	}

	// §4.2.2 internal transitions.
	switch {
	case (m.Has(Create) || m.Has(MovedTo)) && m.Has(IsDir):
		if err := c.walkAndSubscribe(path, false); err != nil {
			if internal.DebugEnabled() {
				internal.Debug(fmt.Sprintf("walkAndSubscribe %s: %v", path, err), 0)
			}
		}
	case m.Has(MovedFrom) && m.Has(IsDir):
		_ = c.removeRoot(path)
	case m.Has(RootMove) && isRoot:
		_ = c.removeRoot(entry.Path)
	case m.Has(Ignored):
		c.mu.Lock()
		c.idx.removeByID(wd)
		c.mu.Unlock()
	}

	return false
}

// deliver hands an event to the sink and interprets its return value
// (spec.md §6's sink contract). Returns true if the Context should
// terminate.
func (c *Context) deliver(e Event) bool {
	rc := c.sink(e, c.cookie)
	if rc != 0 {
		c.mu.Lock()
		c.exitErr = ErrSinkTerminated
		c.mu.Unlock()
		c.requestShutdown(ErrSinkTerminated)
		return true
	}
	return false
}

func (c *Context) isRootLocked(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idx.isRoot(path)
}

func (c *Context) rootCountLocked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idx.roots)
}

func (c *Context) isIndexedLocked(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.idx.byPathLookup(path)
	return ok
}

// byIDLookupLocked is a small helper so handleEvent need not juggle the
// Context lock inline; kept as a method on watchIndices called with the
// owning Context for lock acquisition.
func (idx *watchIndices) byIDLookupLocked(c *Context, wd uint32) (*WatchEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return idx.byIDLookup(wd)
}
