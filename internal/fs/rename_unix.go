//go:build unix

package fs

import (
	"errors"
	"syscall"
)

// isCrossDevice reports whether a rename failed because source and
// destination are on different file systems.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
