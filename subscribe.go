//go:build linux && !appengine

package fluffy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tinkershack/fluffy-go/internal"
	"golang.org/x/sys/unix"
)

// canonicalize resolves symlinks and makes path absolute, the "canonical
// path" spec.md refers to throughout §3/§4.1.
func canonicalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathResolution, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathResolution, err)
	}
	return filepath.Clean(real), nil
}

// addRoot implements spec.md §4.1's add_root.
func (c *Context) addRoot(path string) error {
	root, err := canonicalize(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidArgument, root)
	}

	c.mu.Lock()
	if _, already := c.idx.byPathLookup(root); !already {
		c.idx.roots[root] = struct{}{}
	}
	c.mu.Unlock()

	return c.walkAndSubscribe(root, true)
}

// removeRoot implements spec.md §4.1's remove_root / §4.3's subtree removal.
// Any currently-indexed path may be removed, not only ones added as roots.
func (c *Context) removeRoot(path string) error {
	root, err := canonicalize(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	e, ok := c.idx.byPathLookup(root)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	targets := append([]uint32{e.ID}, idsFor(c.idx, c.idx.descendants(root))...)
	c.mu.Unlock()

	for _, wd := range targets {
		if _, err := unix.InotifyRmWatch(c.notifierFd, wd); err != nil {
			if internal.DebugEnabled() {
				internal.Debug(fmt.Sprintf("inotify_rm_watch(%d): %v", wd, err), 0)
			}
		}
	}
	// The kernel delivers IN_IGNORED asynchronously for each of these; the
	// event loop reconciles the indices when it arrives (spec.md §4.3.3).
	return nil
}

func idsFor(idx *watchIndices, paths []string) []uint32 {
	ids := make([]uint32, 0, len(paths))
	for _, p := range paths {
		if e, ok := idx.byPathLookup(p); ok {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// walkAndSubscribe performs the depth-first, same-filesystem, no-symlink
// traversal of spec.md §4.1, installing a kernel watch on every directory it
// reaches and demoting any root that turns out to be a descendant.
//
// isRootWalk is true only for the walk invoked directly from add_root; a
// walk triggered by Create/MovedTo (§4.2.2) or by recovery (§4.4) passes
// false, since root membership there is either already decided or
// irrelevant (the path is never itself treated as a fresh root).
func (c *Context) walkAndSubscribe(root string, isRootWalk bool) error {
	var rootDev uint64
	if st, err := os.Lstat(root); err == nil {
		rootDev = deviceOf(st)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if internal.DebugEnabled() {
				internal.Debug(fmt.Sprintf("walk %s: %v", p, err), 0)
			}
			return nil // best-effort coverage (spec.md §4.1)
		}
		if !d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err == nil && rootDev != 0 && deviceOf(info) != rootDev {
			return filepath.SkipDir // stay on one filesystem
		}

		if p != root {
			c.mu.Lock()
			c.idx.demoteDescendantRoots(p)
			if c.idx.isRoot(p) {
				delete(c.idx.roots, p)
			}
			c.mu.Unlock()
		} else if isRootWalk {
			c.mu.Lock()
			c.idx.demoteDescendantRoots(root)
			c.mu.Unlock()
		}

		if err := c.register(p); err != nil {
			if errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.ENOMEM) {
				return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
			}
			if internal.DebugEnabled() {
				internal.Debug(fmt.Sprintf("inotify_add_watch %s: %v", p, err), 0)
			}
			return nil // per-directory failures are logged and skipped
		}
		return nil
	})
}

// register installs (or refreshes) a kernel watch on path with the standard
// mask and updates the indices under the Context lock (spec.md §4.1).
func (c *Context) register(path string) error {
	wd, err := unix.InotifyAddWatch(c.notifierFd, path, standardMask)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.idx.byIDLookup(uint32(wd)); ok {
		c.idx.refresh(e, uint32(wd), standardMask)
		return nil
	}
	if e, ok := c.idx.byPathLookup(path); ok {
		c.idx.refresh(e, uint32(wd), standardMask)
		return nil
	}
	c.idx.insert(&WatchEntry{ID: uint32(wd), Mask: standardMask, Path: path})
	return nil
}
