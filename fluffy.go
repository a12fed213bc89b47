//go:build linux && !appengine

// Package fluffy is a recursive filesystem change-notification library built
// on Linux inotify. A caller opens a Context, names one or more root
// directories, and receives a single event stream covering the whole tree
// beneath those roots; the library maintains inotify watches on every
// subdirectory automatically as the tree changes.
package fluffy

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// Handle identifies a Context within this process. It is a positive integer,
// stable for the Context's lifetime and never reused.
type Handle int32

// Mask is the event bitfield delivered to a sink. The natural bits reuse the
// kernel's own IN_* numeric values so they can be compared directly;
// synthetic bits occupy otherwise-unused high bits (spec.md §6).
type Mask uint32

const (
	Access        Mask = unix.IN_ACCESS
	Modify        Mask = unix.IN_MODIFY
	Attrib        Mask = unix.IN_ATTRIB
	CloseWrite    Mask = unix.IN_CLOSE_WRITE
	CloseNoWrite  Mask = unix.IN_CLOSE_NOWRITE
	Open          Mask = unix.IN_OPEN
	MovedFrom     Mask = unix.IN_MOVED_FROM
	MovedTo       Mask = unix.IN_MOVED_TO
	Create        Mask = unix.IN_CREATE
	Delete        Mask = unix.IN_DELETE
	RootDelete    Mask = unix.IN_DELETE_SELF
	RootMove      Mask = unix.IN_MOVE_SELF
	Unmount       Mask = unix.IN_UNMOUNT
	QueueOverflow Mask = unix.IN_Q_OVERFLOW
	Ignored       Mask = unix.IN_IGNORED
	IsDir         Mask = unix.IN_ISDIR

	// RootIgnored is set when a root's watch was torn down (spec.md §4.2.1
	// rule 3). Never sent by the kernel; synthesized by the event loop.
	RootIgnored Mask = 0x00010000
	// WatchEmpty is set alongside RootIgnored when, after this event, no
	// roots remain for the Context.
	WatchEmpty Mask = 0x00020000
)

// standardMask is the event mask fluffy subscribes every watch with: every
// natural event of interest, plus the reliability flags that keep watches
// from following symlinks, crossing into unlinked directories, or attaching
// to non-directories.
const standardMask = uint32(Access | Modify | Attrib | CloseWrite | CloseNoWrite |
	Open | MovedFrom | MovedTo | Create | Delete | RootDelete | RootMove) |
	unix.IN_EXCL_UNLINK | unix.IN_DONT_FOLLOW | unix.IN_ONLYDIR

// Has reports whether all bits in want are set in m.
func (m Mask) Has(want Mask) bool { return m&want == want }

func (m Mask) String() string {
	names := []struct {
		b Mask
		s string
	}{
		{Access, "ACCESS"}, {Modify, "MODIFY"}, {Attrib, "ATTRIB"},
		{CloseWrite, "CLOSE_WRITE"}, {CloseNoWrite, "CLOSE_NOWRITE"}, {Open, "OPEN"},
		{MovedFrom, "MOVED_FROM"}, {MovedTo, "MOVED_TO"}, {Create, "CREATE"},
		{Delete, "DELETE"}, {RootDelete, "ROOT_DELETE"}, {RootMove, "ROOT_MOVE"},
		{Unmount, "UNMOUNT"}, {QueueOverflow, "Q_OVERFLOW"}, {Ignored, "IGNORED"},
		{IsDir, "ISDIR"}, {RootIgnored, "ROOT_IGNORED"}, {WatchEmpty, "WATCH_EMPTY"},
	}
	var buf bytes.Buffer
	for _, n := range names {
		if m.Has(n.b) {
			if buf.Len() > 0 {
				buf.WriteByte('|')
			}
			buf.WriteString(n.s)
		}
	}
	if buf.Len() == 0 {
		return "NONE"
	}
	return buf.String()
}

// Event is delivered to a sink for every user-visible occurrence: a raw
// kernel event that survived handoff filtering, or one of the two synthetic
// overflow/root-ignored notifications.
type Event struct {
	Mask Mask
	Path string
}

func (e Event) String() string { return fmt.Sprintf("%s: %s", e.Mask, e.Path) }

// SinkFunc is the caller-supplied event callback. It is invoked synchronously
// on the Context's worker goroutine; returning a non-zero value terminates
// the Context (spec.md §6's sink contract). cookie is the opaque value
// passed to Init.
type SinkFunc func(e Event, cookie any) int

// PrintSink is a ready-made SinkFunc that writes events to the given
// io.Writer-like printf function; used by cmd/watchtree and tests, mirroring
// the original C library's fluffy_print_event helper.
func PrintSink(printf func(format string, args ...any)) SinkFunc {
	return func(e Event, _ any) int {
		printf("%s\n", e)
		return 0
	}
}
