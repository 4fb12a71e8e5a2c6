//go:build !linux

package storage

import (
	"io/fs"

	"github.com/starford/thumbindex/internal/models"
)

func sysTimes(_ fs.FileInfo) (atime, ctime int64) {
	return models.Unknown, models.Unknown
}
