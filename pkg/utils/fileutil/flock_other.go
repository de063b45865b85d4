//go:build solaris || plan9 || aix || js
// +build solaris plan9 aix js

package fileutil

import (
	"errors"
	"os"
)

type nopLock struct{}

var _ Releaser = (*nopLock)(nil)

func (l *nopLock) Release() error { return nil }

// NewLock is not supported on this platform.
func NewLock(f *os.File) (Releaser, error) {
	return &nopLock{}, errors.New("file locking is not supported on this platform")
}
