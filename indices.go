//go:build linux && !appengine

package fluffy

import (
	"sort"
	"strings"
)

// WatchEntry describes one live inotify subscription (spec.md §3).
type WatchEntry struct {
	ID   uint32 // inotify watch descriptor
	Mask uint32 // event mask requested
	Path string // absolute canonical path of the watched directory
}

// watchIndices holds the three coordinated lookup structures plus the roots
// set described in spec.md §3. wd_by_id is the owning index (spec.md §9's
// "ownership of WatchEntry" note); wd_by_path and path_order hold the same
// *WatchEntry / id, never a second copy, so a removal from wd_by_id is the
// only place an entry is actually freed.
type watchIndices struct {
	byID    map[uint32]*WatchEntry
	byPath  map[string]*WatchEntry
	order   *orderedPaths // path -> wd, supports prefix range queries
	roots   map[string]struct{}
	nwd     int
}

func newWatchIndices() *watchIndices {
	return &watchIndices{
		byID:   make(map[uint32]*WatchEntry),
		byPath: make(map[string]*WatchEntry),
		order:  newOrderedPaths(),
		roots:  make(map[string]struct{}),
	}
}

// insert adds a brand-new entry to all three indices. Callers must hold the
// Context lock.
func (w *watchIndices) insert(e *WatchEntry) {
	w.byID[e.ID] = e
	w.byPath[e.Path] = e
	w.order.set(e.Path, e.ID)
	w.nwd++
}

// refresh updates an existing entry's descriptor/mask in place (used when
// inotify_add_watch returns an already-known wd for a re-registered path).
func (w *watchIndices) refresh(e *WatchEntry, id, mask uint32) {
	if e.ID != id {
		delete(w.byID, e.ID)
		e.ID = id
		w.byID[id] = e
	}
	e.Mask = mask
	w.order.set(e.Path, id)
}

// removeByID drops an entry from every index that can still be reached. The
// event loop calls it when the kernel reports a watch Ignored, which is how
// both explicit teardown (removeRoot) and out-of-band disappearance reach
// the indices.
func (w *watchIndices) removeByID(id uint32) *WatchEntry {
	e, ok := w.byID[id]
	if !ok {
		return nil
	}
	delete(w.byID, id)
	delete(w.byPath, e.Path)
	w.order.delete(e.Path)
	delete(w.roots, e.Path)
	w.nwd--
	return e
}

func (w *watchIndices) byPathLookup(path string) (*WatchEntry, bool) {
	e, ok := w.byPath[path]
	return e, ok
}

func (w *watchIndices) byIDLookup(id uint32) (*WatchEntry, bool) {
	e, ok := w.byID[id]
	return e, ok
}

// descendants returns, in lexicographic order, every indexed path that is a
// strict descendant of prefix (prefix itself excluded).
func (w *watchIndices) descendants(prefix string) []string {
	return w.order.withPrefix(prefix + "/")
}

func (w *watchIndices) isRoot(path string) bool {
	_, ok := w.roots[path]
	return ok
}

// demoteDescendantRoots removes any root that is a strict descendant of
// ancestor, implementing the "roots collapse" rule of spec.md invariant 3.
func (w *watchIndices) demoteDescendantRoots(ancestor string) {
	prefix := ancestor + "/"
	for r := range w.roots {
		if strings.HasPrefix(r, prefix) {
			delete(w.roots, r)
		}
	}
}

// orderedPaths is a sorted-slice backed associative structure over absolute
// canonical paths, supporting the prefix range query that subtree removal
// depends on (spec.md §4.3, §9). A balanced tree would also satisfy the
// contract; a sorted slice is simplest to reason about and deletions here
// are infrequent relative to lookups. No stdlib container offers ordered
// prefix scans, so this one piece is necessarily hand-rolled (see
// DESIGN.md).
type orderedPaths struct {
	keys []string
	vals map[string]uint32
}

func newOrderedPaths() *orderedPaths {
	return &orderedPaths{vals: make(map[string]uint32)}
}

func (o *orderedPaths) set(path string, id uint32) {
	if _, ok := o.vals[path]; !ok {
		i := sort.SearchStrings(o.keys, path)
		o.keys = append(o.keys, "")
		copy(o.keys[i+1:], o.keys[i:])
		o.keys[i] = path
	}
	o.vals[path] = id
}

func (o *orderedPaths) delete(path string) {
	if _, ok := o.vals[path]; !ok {
		return
	}
	delete(o.vals, path)
	i := sort.SearchStrings(o.keys, path)
	if i < len(o.keys) && o.keys[i] == path {
		o.keys = append(o.keys[:i], o.keys[i+1:]...)
	}
}

func (o *orderedPaths) get(path string) (uint32, bool) {
	id, ok := o.vals[path]
	return id, ok
}

// withPrefix returns every key with the given prefix, in ascending order.
// Since keys are canonical paths, a one-sided scan starting at the first key
// >= prefix and stopping at the first key that no longer has the prefix
// finds exactly the matching range in O(log n + matches).
func (o *orderedPaths) withPrefix(prefix string) []string {
	start := sort.SearchStrings(o.keys, prefix)
	var out []string
	for i := start; i < len(o.keys); i++ {
		if !strings.HasPrefix(o.keys[i], prefix) {
			break
		}
		out = append(out, o.keys[i])
	}
	return out
}
