package rknn

import "fmt"

// ErrorKind classifies an Error.
type ErrorKind int

const (
	// KindNative means a native entry point returned a nonzero status.
	KindNative ErrorKind = iota
	// KindInvalidArgument means the call was rejected before reaching native code.
	KindInvalidArgument
	// KindReleased means the resource (or the session it borrows) was already released.
	KindReleased
	// KindIntegrity means native code reported success but handed back unusable data.
	KindIntegrity
	// KindTypeMismatch means a byte buffer cannot be viewed as the requested element type.
	KindTypeMismatch
	// KindNotInitialized means the runtime library has not been loaded.
	KindNotInitialized
)

func (k ErrorKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindInvalidArgument:
		return "invalid argument"
	case KindReleased:
		return "released"
	case KindIntegrity:
		return "integrity"
	case KindTypeMismatch:
		return "type mismatch"
	case KindNotInitialized:
		return "not initialized"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the single failure type returned by the binding.
// Code carries the native status when Kind is KindNative and is zero otherwise.
type Error struct {
	Kind ErrorKind
	Op   string
	Code int32
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches errors of the same kind, so errors.Is(err, ErrReleased) works for
// any released-resource failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrReleased        = &Error{Kind: KindReleased}
	ErrIntegrity       = &Error{Kind: KindIntegrity}
	ErrTypeMismatch    = &Error{Kind: KindTypeMismatch}
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
)

func statusError(op string, code int32) error {
	return &Error{
		Kind: KindNative,
		Op:   op,
		Code: code,
		Msg:  fmt.Sprintf("%s failed. exit code:%d", op, code),
	}
}

func newError(kind ErrorKind, op string, format string, args ...any) error {
	return &Error{
		Kind: kind,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}
