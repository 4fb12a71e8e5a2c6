// Package storage maps filesystem paths to index roots and walks the
// filesystem to produce stat snapshots.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/shirou/gopsutil/v4/disk"
)

// ErrNoRoot is returned when no configured root or mount point contains a path.
var ErrNoRoot = errors.New("storage: no root contains path")

const (
	DefaultCacheDirName = ".thumbindex"
	DefaultFileName     = "index.db"
	defaultMountTTL     = time.Minute
	mountsKey           = "mounts"
)

// Location identifies the root owning a path and where its index lives.
type Location struct {
	Root      string
	Token     string
	CachePath string
}

// Options configure a Resolver.
type Options struct {
	// Roots are library roots checked before mount points. The longest
	// root containing a path wins.
	Roots []string
	// CacheDirName is the directory created under a root to hold its index.
	CacheDirName string
	// CacheHome, when set, holds one sub-directory per root token instead
	// of writing under the root.
	CacheHome string
	// FileName is the index database file name, including its schema version.
	FileName string
	// DetectMounts enables mount-point roots for paths outside Roots.
	DetectMounts bool
	MountTTL     time.Duration
}

// Resolver determines the root, token, and cache path for any path.
type Resolver struct {
	roots        []string
	dirName      string
	home         string
	fileName     string
	detectMounts bool

	mounts     *ttlcache.Cache[string, []string]
	listMounts func(ctx context.Context) ([]string, error)
}

// NewResolver builds a Resolver from opts.
func NewResolver(opts Options) (*Resolver, error) {
	r := &Resolver{
		dirName:      opts.CacheDirName,
		home:         opts.CacheHome,
		fileName:     opts.FileName,
		detectMounts: opts.DetectMounts,
		listMounts:   partitionMounts,
	}
	if r.dirName == "" {
		r.dirName = DefaultCacheDirName
	}
	if r.fileName == "" {
		r.fileName = DefaultFileName
	}
	if r.home != "" {
		abs, err := filepath.Abs(r.home)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve cache home: %w", err)
		}
		r.home = abs
	}

	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve root %s: %w", root, err)
		}
		r.roots = append(r.roots, abs)
	}
	sortLongestFirst(r.roots)

	ttl := opts.MountTTL
	if ttl <= 0 {
		ttl = defaultMountTTL
	}
	r.mounts = ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
	return r, nil
}

// CacheDirName returns the per-root cache directory name.
func (r *Resolver) CacheDirName() string {
	return r.dirName
}

// Resolve returns the Location for p and ensures its cache directory exists.
func (r *Resolver) Resolve(p string) (Location, error) {
	root, err := r.Root(p)
	if err != nil {
		return Location{}, err
	}
	token := Token(root)

	var dir string
	if r.home != "" {
		dir = filepath.Join(r.home, token)
	} else {
		dir = filepath.Join(root, r.dirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("storage: create cache dir: %w", err)
	}
	return Location{
		Root:      root,
		Token:     token,
		CachePath: filepath.Join(dir, r.fileName),
	}, nil
}

// Root returns the root directory owning p.
func (r *Resolver) Root(p string) (string, error) {
	abs, err := absPath(p)
	if err != nil {
		return "", err
	}
	for _, root := range r.roots {
		if contains(root, abs) {
			return root, nil
		}
	}
	if !r.detectMounts {
		return "", fmt.Errorf("%w: %s", ErrNoRoot, p)
	}

	mounts, err := r.mountPoints()
	if err != nil {
		return "", err
	}
	for _, m := range mounts {
		if contains(m, abs) {
			return m, nil
		}
	}
	return filepath.VolumeName(abs) + string(filepath.Separator), nil
}

// Normalize returns p relative to its root with forward slashes. The root
// itself normalizes to "".
func (r *Resolver) Normalize(p string) (string, error) {
	root, err := r.Root(p)
	if err != nil {
		return "", err
	}
	abs, err := absPath(p)
	if err != nil {
		return "", err
	}
	return RelPath(root, abs)
}

func (r *Resolver) mountPoints() ([]string, error) {
	if item := r.mounts.Get(mountsKey); item != nil {
		return item.Value(), nil
	}
	mounts, err := r.listMounts(context.Background())
	if err != nil {
		return nil, fmt.Errorf("storage: list mounts: %w", err)
	}
	sortLongestFirst(mounts)
	r.mounts.Set(mountsKey, mounts, ttlcache.DefaultTTL)
	return mounts, nil
}

func partitionMounts(ctx context.Context) ([]string, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Mountpoint != "" {
			out = append(out, filepath.Clean(p.Mountpoint))
		}
	}
	return out, nil
}

// Token derives the opaque identifier of a root from its location.
func Token(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return hex.EncodeToString(sum[:6])
}

// RelPath returns abs relative to root using forward slashes. It fails when
// abs lies outside root.
func RelPath(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: relative path: %w", err)
	}
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: path escapes root %s: %s", root, abs)
	}
	return filepath.ToSlash(rel), nil
}

// Join maps a root-relative name back to an absolute path under root.
func Join(root, fullName string) string {
	if fullName == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(fullName))
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	return abs, nil
}

func contains(root, abs string) bool {
	if abs == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(abs, prefix)
}

func sortLongestFirst(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
}
