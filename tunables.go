//go:build linux && !appengine

package fluffy

import (
	"fmt"
	"os"
)

const (
	maxQueuedEventsPath  = "/proc/sys/fs/inotify/max_queued_events"
	maxUserInstancesPath = "/proc/sys/fs/inotify/max_user_instances"
	maxUserWatchesPath   = "/proc/sys/fs/inotify/max_user_watches"
)

// SetMaxQueuedEvents updates fs.inotify.max_queued_events. The new limit
// only takes effect for notifiers opened after this call; an existing
// Context must be reinitiated to pick it up (spec.md §6).
func SetMaxQueuedEvents(max string) error { return writeTunable(maxQueuedEventsPath, max) }

// SetMaxUserInstances updates fs.inotify.max_user_instances.
func SetMaxUserInstances(max string) error { return writeTunable(maxUserInstancesPath, max) }

// SetMaxUserWatches updates fs.inotify.max_user_watches.
func SetMaxUserWatches(max string) error { return writeTunable(maxUserWatchesPath, max) }

// writeTunable writes max verbatim to path. It does not validate the value
// beyond rejecting an empty string; a value the kernel refuses makes the
// write fail, and that error is returned wrapped in ErrKernelIO.
func writeTunable(path, max string) error {
	if max == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidArgument)
	}
	if err := os.WriteFile(path, []byte(max), 0644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrKernelIO, path, err)
	}
	return nil
}
