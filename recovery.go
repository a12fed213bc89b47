//go:build linux && !appengine

package fluffy

import (
	"fmt"

	"github.com/tinkershack/fluffy-go/internal"
)

// reinitiate implements spec.md §4.4: close the notifier, drop every index
// except roots, open a fresh notifier, and re-walk each root. Always runs
// on the worker goroutine — triggered either by a QueueOverflow event or by
// an explicit Reinitiate/ReinitiateAll request drained between epoll waits.
func (c *Context) reinitiate() error {
	if internal.DebugEnabled() {
		internal.Debug(fmt.Sprintf("context %d: reinitiating", c.handle), 0)
	}

	if err := c.reopenNotifier(); err != nil {
		return err
	}

	c.mu.Lock()
	roots := make([]string, 0, len(c.idx.roots))
	for r := range c.idx.roots {
		roots = append(roots, r)
	}
	c.idx.byID = make(map[uint32]*WatchEntry)
	c.idx.byPath = make(map[string]*WatchEntry)
	c.idx.order = newOrderedPaths()
	c.idx.nwd = 0
	c.mu.Unlock()

	var firstErr error
	for _, root := range roots {
		if err := c.walkAndSubscribe(root, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
