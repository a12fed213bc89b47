package fluffy

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/tinkershack/fluffy-go/internal"
)

// TestAddRootSkipsUnreadableSubdirectory exercises spec.md §4.1's
// best-effort walk: a subdirectory this process can't read is skipped
// rather than aborting the whole add_root call, and the permission error
// observed along the way is the same EACCES internal.UnixEACCES names.
func TestAddRootSkipsUnreadableSubdirectory(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, permission bits have no effect")
	}
	t.Parallel()

	tmp := t.TempDir()
	locked := joinPath(tmp, "locked")
	mustMkdir(t, locked)
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("chmod: %s", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	_, statErr := os.Open(locked)
	if !errors.Is(statErr, internal.UnixEACCES) {
		t.Fatalf("expected opening a 0-mode directory to fail with EACCES, got %v", statErr)
	}

	c := newCollector()
	h := openHandle(t, c)
	if err := AddRoot(h, tmp); err != nil {
		t.Fatalf("AddRoot: %s", err)
	}

	sibling := joinPath(tmp, "sibling.txt")
	mustWriteFile(t, sibling, "ok")
	waitForEvents()

	events := c.snapshot()
	requireEvent(t, events, sibling, Create, fmt.Sprintf("expected events for %s despite an unreadable sibling directory", sibling))
}
