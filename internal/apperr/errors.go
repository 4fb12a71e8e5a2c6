// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMissingStat      = errors.New("stat is required")
	ErrUnnormalizedPath = errors.New("path contains a platform separator; normalize to forward slashes")
	ErrMissingType      = errors.New("entry type is required")
	ErrInvalidEntryType = errors.New("invalid entry type")
)
