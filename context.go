//go:build linux && !appengine

package fluffy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tinkershack/fluffy-go/internal"
	"golang.org/x/sys/unix"
)

// waitMode tracks whether WaitUntilDone or Detach has claimed this Context;
// the two are mutually exclusive (spec.md §4.5).
type waitMode int32

const (
	waitModeNone waitMode = iota
	waitModeWaiting
	waitModeDetached
)

// Context is one independently-running recursive watcher (spec.md §3).
type Context struct {
	handle Handle

	notifierFd int // raw inotify fd
	poller     *readinessMultiplexer

	sink   SinkFunc
	cookie any

	mu  sync.Mutex
	idx *watchIndices

	done     chan struct{} // closed by Destroy / a fatal internal error
	doneOnce sync.Once
	doneResp chan struct{} // closed once the worker has fully torn down

	waitMode atomic.Int32
	exitErr  error // set before doneResp is closed

	reinitMu    sync.Mutex
	reinitQueue []chan error // pending explicit Reinitiate requests
}

// Init allocates a Context, opens a kernel notifier, and spawns its worker
// goroutine. sink is invoked synchronously from the worker for every
// user-visible event; cookie is passed through untouched (spec.md §6).
func Init(sink SinkFunc, cookie any) (Handle, error) {
	if sink == nil {
		return 0, fmt.Errorf("%w: sink is nil", ErrInvalidArgument)
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return 0, fmt.Errorf("%w: inotify_init1: %w", ErrKernelIO, err)
	}

	poller, err := newReadinessMultiplexer(fd)
	if err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("%w: %w", ErrKernelIO, err)
	}

	c := &Context{
		notifierFd: fd,
		poller:     poller,
		sink:       sink,
		cookie:     cookie,
		idx:        newWatchIndices(),
		done:       make(chan struct{}),
		doneResp:   make(chan struct{}),
	}
	c.handle = defaultRegistry.mint()
	defaultRegistry.put(c.handle, c)

	go c.runLoop()

	return c.handle, nil
}

func lookup(h Handle) (*Context, error) {
	c, ok := defaultRegistry.get(h)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	return c, nil
}

// AddRoot canonicalizes path and begins watching its recursive closure
// (spec.md §4.1).
func AddRoot(h Handle, path string) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	return c.addRoot(path)
}

// RemoveRoot tears down the watch on path and every descendant currently
// indexed, regardless of whether path itself was ever added as a root
// (spec.md §4.1).
func RemoveRoot(h Handle, path string) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	return c.removeRoot(path)
}

// WaitUntilDone blocks until the Context's worker terminates, returning nil
// on clean termination (including an explicit Destroy) and the termination
// error otherwise. Mutually exclusive with Detach.
func WaitUntilDone(h Handle) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	if !c.waitMode.CompareAndSwap(int32(waitModeNone), int32(waitModeWaiting)) {
		return ErrAlreadyWaiting
	}
	<-c.doneResp
	return c.exitErr
}

// Detach declares that no caller will wait on this Context; its resources
// are reclaimed when it terminates on its own. Mutually exclusive with
// WaitUntilDone.
func Detach(h Handle) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	if !c.waitMode.CompareAndSwap(int32(waitModeNone), int32(waitModeDetached)) {
		return ErrAlreadyWaiting
	}
	return nil
}

// Destroy requests immediate termination of the Context. Idempotent on an
// already-destroyed handle, which returns ErrNotFound (spec.md §8).
func Destroy(h Handle) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	c.requestShutdown(nil)
	return nil
}

// requestShutdown unblocks the worker at its readiness wait. exitErr, if
// non-nil, is recorded as the termination reason (nil means clean exit).
// Safe to call more than once and concurrently with the worker's own
// teardown.
func (c *Context) requestShutdown(exitErr error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		if c.exitErr == nil {
			c.exitErr = exitErr
		}
		c.mu.Unlock()
		close(c.done)
		_ = c.poller.wakeUp()
	})
}

func (c *Context) isShuttingDown() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// teardown releases every resource owned by the Context and removes it from
// the Registry (spec.md §4.5). Called exactly once, from the worker
// goroutine, after it observes cancellation or a fatal error.
func (c *Context) teardown(finalErr error) {
	c.mu.Lock()
	if finalErr != nil && c.exitErr == nil {
		c.exitErr = finalErr
	}
	c.mu.Unlock()

	c.poller.close()
	unix.Close(c.notifierFd)
	defaultRegistry.delete(c.handle)

	if internal.DebugEnabled() {
		internal.Debug(fmt.Sprintf("context %d torn down", c.handle), 0)
	}

	close(c.doneResp)
}

// Reinitiate is the public operation described in spec.md §4.4/§6; it
// requests the worker perform a full tree re-walk and blocks until that
// re-walk completes. See recovery.go.
func Reinitiate(h Handle) error {
	c, err := lookup(h)
	if err != nil {
		return err
	}
	return <-c.requestReinitiate()
}

// ReinitiateAll requests recovery on every live Context in the process.
func ReinitiateAll() error {
	pending := make([]<-chan error, 0)
	for _, c := range defaultRegistry.all() {
		pending = append(pending, c.requestReinitiate())
	}
	var firstErr error
	for _, p := range pending {
		if err := <-p; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// requestReinitiate enqueues a recovery request and wakes the worker; it
// returns a channel that receives exactly one result.
func (c *Context) requestReinitiate() <-chan error {
	resp := make(chan error, 1)
	if c.isShuttingDown() {
		resp <- ErrNotInitialized
		return resp
	}
	c.reinitMu.Lock()
	c.reinitQueue = append(c.reinitQueue, resp)
	c.reinitMu.Unlock()
	_ = c.poller.wakeUp()
	return resp
}

// drainReinitiateQueue pops every pending request, for the worker to service
// after waking up with no notifier data ready.
func (c *Context) drainReinitiateQueue() []chan error {
	c.reinitMu.Lock()
	defer c.reinitMu.Unlock()
	if len(c.reinitQueue) == 0 {
		return nil
	}
	q := c.reinitQueue
	c.reinitQueue = nil
	return q
}

// reopenNotifier closes the current inotify fd and opens a fresh one,
// rebinding the readiness multiplexer to it. Used by recovery (spec.md
// §4.4) and never called concurrently with the worker's own read loop since
// it always runs on the worker goroutine.
func (c *Context) reopenNotifier() error {
	old := c.notifierFd
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("%w: inotify_init1: %w", ErrKernelIO, err)
	}
	if err := c.poller.rebind(fd); err != nil {
		unix.Close(fd)
		return fmt.Errorf("%w: %w", ErrKernelIO, err)
	}
	c.notifierFd = fd
	unix.Close(old)
	return nil
}
