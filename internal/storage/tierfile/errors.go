package tierfile

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Medium errors. Every file-level failure is classified into one of these
// at the tier store boundary; callers decide whether to degrade, never to
// terminate.
var (
	// ErrMediumUnavailable means no storage medium (or file) is present.
	ErrMediumUnavailable = errors.New("storage medium unavailable")

	// ErrMediumReadOnly means the medium refused a write.
	ErrMediumReadOnly = errors.New("storage medium read-only")

	// ErrMediumIO is a transient device fault.
	ErrMediumIO = errors.New("storage medium i/o error")
)

// classify wraps a raw file error with the matching medium sentinel.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w: %w", op, ErrMediumUnavailable, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		return fmt.Errorf("%s: %w: %w", op, ErrMediumReadOnly, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrMediumIO, err)
	}
}
