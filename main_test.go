package fluffy

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies every Context started by a test has fully torn down its
// worker goroutine before the test binary exits. Only goroutines are
// checked; leaked file descriptors are not detected.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
