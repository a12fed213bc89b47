//go:build linux

package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Synthetic mask bits that never come from the kernel; kept in sync with
// the public package's RootIgnored/WatchEmpty constants.
const (
	MaskRootIgnored uint32 = 0x00010000
	MaskWatchEmpty  uint32 = 0x00020000
)

// Debug prints a decoded event mask to stderr. It prints unconditionally;
// callers check DebugEnabled (FLUFFY_DEBUG) first. Called from the event loop, the subscription manager, and recovery so a
// single env var traces the whole lifecycle of a watch.
func Debug(path string, mask uint32) {
	names := []struct {
		n string
		m uint32
	}{
		{"IN_ACCESS", unix.IN_ACCESS},
		{"IN_ATTRIB", unix.IN_ATTRIB},
		{"IN_CLOSE_WRITE", unix.IN_CLOSE_WRITE},
		{"IN_CLOSE_NOWRITE", unix.IN_CLOSE_NOWRITE},
		{"IN_CREATE", unix.IN_CREATE},
		{"IN_DELETE", unix.IN_DELETE},
		{"IN_DELETE_SELF", unix.IN_DELETE_SELF},
		{"IN_MODIFY", unix.IN_MODIFY},
		{"IN_MOVE_SELF", unix.IN_MOVE_SELF},
		{"IN_MOVED_FROM", unix.IN_MOVED_FROM},
		{"IN_MOVED_TO", unix.IN_MOVED_TO},
		{"IN_OPEN", unix.IN_OPEN},
		{"IN_IGNORED", unix.IN_IGNORED},
		{"IN_ISDIR", unix.IN_ISDIR},
		{"IN_UNMOUNT", unix.IN_UNMOUNT},
		{"IN_Q_OVERFLOW", unix.IN_Q_OVERFLOW},
		{"ROOT_IGNORED", MaskRootIgnored},
		{"WATCH_EMPTY", MaskWatchEmpty},
	}

	var l []string
	for _, n := range names {
		if mask&n.m == n.m {
			l = append(l, n.n)
		}
	}
	fmt.Fprintf(os.Stderr, "%s  %-40s  %s\n", time.Now().Format("15:04:05.000000"), strings.Join(l, "|"), path)
}

// DebugEnabled reports whether FLUFFY_DEBUG tracing was requested.
func DebugEnabled() bool {
	return os.Getenv("FLUFFY_DEBUG") != ""
}
