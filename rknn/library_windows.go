//go:build windows

package rknn

import "errors"

// The RKNN runtime is only distributed for Linux.
var errUnsupportedPlatform = errors.New("RKNN runtime is not available on windows")

func loadLibrary(path string) (uintptr, error) {
	return 0, errUnsupportedPlatform
}

func getSymbol(handle uintptr, symbol string) (uintptr, error) {
	return 0, errUnsupportedPlatform
}

func closeLibrary(handle uintptr) error {
	return nil
}
