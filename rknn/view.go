package rknn

import (
	"fmt"
	"unsafe"
)

// Element is the set of fixed-size numeric types a tensor buffer can be viewed as.
// Float16 satisfies it through its uint16 underlying type.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func typeName[T Element]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// nativeView returns a []T aliasing byteLen bytes of native memory at addr.
//
// With exact set, byteLen must be a multiple of the element size; otherwise the
// element count is truncated. An empty view never touches addr, so a null
// address is fine when nothing would be read. A non-empty view needs a non-null,
// suitably aligned address.
func nativeView[T Element](op string, addr uintptr, byteLen uintptr, exact bool) ([]T, error) {
	var zero T
	size := unsafe.Sizeof(zero)
	if exact && byteLen%size != 0 {
		return nil, newError(KindTypeMismatch, op, "%s: %d bytes cannot be viewed as %s (element size %d)", op, byteLen, typeName[T](), size)
	}

	count := byteLen / size
	if count == 0 {
		return []T{}, nil
	}
	if addr == 0 {
		return nil, newError(KindIntegrity, op, "%s: buffer of %d bytes points to a null address", op, byteLen)
	}
	if align := unsafe.Alignof(zero); addr%align != 0 {
		return nil, newError(KindTypeMismatch, op, "%s: address %#x is not aligned for %s (alignment %d)", op, addr, typeName[T](), align)
	}

	// #nosec G103 -- addr is native memory owned by the runtime and kept live by the caller's lifecycle guard.
	return unsafe.Slice((*T)(unsafe.Pointer(addr)), count), nil
}
