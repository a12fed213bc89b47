package fluffy

import (
	"os"
	"syscall"
)

// deviceOf returns the st_dev of fi, used by walkAndSubscribe to stay on a
// single filesystem while recursing (spec.md's "same-filesystem" walk).
func deviceOf(fi os.FileInfo) uint64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(st.Dev)
}
