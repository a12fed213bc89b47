package fluffy

import (
	"testing"

	"github.com/syndtr/gocapability/capability"
)

// haveCapSysResource reports whether the current process can plausibly
// write to /proc/sys/fs/inotify/*; writing those files requires
// CAP_SYS_RESOURCE (or running as root, which implies it).
func haveCapSysResource(t *testing.T) bool {
	t.Helper()
	caps, err := capability.NewPid2(0)
	if err != nil {
		t.Skipf("capability.NewPid2: %s", err)
	}
	if err := caps.Load(); err != nil {
		t.Skipf("capability.Load: %s", err)
	}
	return caps.Get(capability.EFFECTIVE, capability.CAP_SYS_RESOURCE)
}

func TestWriteTunableRejectsEmptyValue(t *testing.T) {
	t.Parallel()
	if err := SetMaxUserWatches(""); err == nil {
		t.Fatal("expected an error for an empty tunable value")
	}
}

func TestWriteTunableNeedsPrivilege(t *testing.T) {
	if haveCapSysResource(t) {
		t.Skip("running with CAP_SYS_RESOURCE; this test only covers the unprivileged path")
	}
	if err := SetMaxUserWatches("1000000"); err == nil {
		t.Fatal("expected an error writing fs.inotify.max_user_watches without CAP_SYS_RESOURCE")
	}
}
