package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/starford/thumbindex/internal/models"
)

// Scanner walks a directory tree and reports a Stat for every entry.
type Scanner struct {
	fs   afero.Fs
	skip map[string]struct{}
}

// NewScanner returns a Scanner over fsys. Directories whose base name is in
// skipNames are not descended into and not reported.
func NewScanner(fsys afero.Fs, skipNames ...string) *Scanner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	skip := make(map[string]struct{}, len(skipNames))
	for _, n := range skipNames {
		skip[n] = struct{}{}
	}
	return &Scanner{fs: fsys, skip: skip}
}

// Walk calls fn for each entry strictly below dir. Stats carry absolute
// paths. Walking stops at the first error returned by fn or when ctx is done.
func (s *Scanner) Walk(ctx context.Context, dir string, fn func(*models.Stat) error) error {
	base, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("storage: resolve dir: %w", err)
	}
	err = afero.Walk(s.fs, base, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == base {
			return nil
		}
		if _, ok := s.skip[info.Name()]; ok {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(StatFromInfo(p, info))
	})
	if err != nil {
		return fmt.Errorf("storage: walk %s: %w", dir, err)
	}
	return nil
}

// StatFromInfo builds a Stat for path from info. Access and change times
// are Unknown where the platform does not expose them.
func StatFromInfo(path string, info fs.FileInfo) *models.Stat {
	typ := models.EntryFile
	if info.IsDir() {
		typ = models.EntryDir
	}
	st := models.NewStat(path, typ)
	st.Size = info.Size()
	st.Mtime = info.ModTime().UnixMilli()
	st.Atime, st.Ctime = sysTimes(info)
	return st
}
