//go:build windows

package rknn

import "os"

func lockFile(file *os.File) error {
	return errUnsupportedPlatform
}

func unlockFile(file *os.File) error {
	return nil
}

func isLockWouldBlock(err error) bool {
	return false
}
