//go:build unix

package fsid

import (
	"fmt"
	"os"
	"syscall"
)

func identity(_ string, info os.FileInfo) (ID, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", false
	}
	return ID(fmt.Sprintf("%d:%d", uint64(st.Dev), uint64(st.Ino))), true
}
