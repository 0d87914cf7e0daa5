package rknn

import (
	"strings"
	"unsafe"
)

// goStringToCString returns a NUL-terminated copy of s. Strings with an
// embedded NUL cannot be represented and are rejected.
func goStringToCString(op, s string) ([]byte, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return nil, newError(KindInvalidArgument, op, "%s: string contains NUL byte at offset %d: %q", op, i, s)
	}
	return append([]byte(s), 0), nil
}

// cStringPointer returns the address of a buffer built by goStringToCString.
// The caller keeps b alive until the native call returns.
func cStringPointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}
