//go:build linux

package storage

import (
	"io/fs"
	"syscall"

	"github.com/starford/thumbindex/internal/models"
)

func sysTimes(info fs.FileInfo) (atime, ctime int64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return models.Unknown, models.Unknown
	}
	atime = int64(st.Atim.Sec)*1000 + int64(st.Atim.Nsec)/1e6
	ctime = int64(st.Ctim.Sec)*1000 + int64(st.Ctim.Nsec)/1e6
	return atime, ctime
}
