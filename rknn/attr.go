package rknn

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// toTensorAttr copies a native record into an owned TensorAttr.
//
// Dims are cut to n_dims, clamped to MaxDims so a bogus count from the runtime
// never exposes the uninitialized tail. Unknown enum integers map to the *Max
// variants and are logged rather than failing the query.
func (raw *rawTensorAttr) toTensorAttr() TensorAttr {
	n := raw.nDims
	if n > MaxDims {
		n = MaxDims
	}
	dims := make([]uint32, n)
	copy(dims, raw.dims[:n])

	attr := TensorAttr{
		Index:          raw.index,
		NDims:          raw.nDims,
		Dims:           dims,
		Name:           cCharsToString(raw.name[:]),
		NElems:         raw.nElems,
		Size:           raw.size,
		Format:         tensorFormatFromNative(raw.fmt),
		Type:           tensorTypeFromNative(raw.typ),
		QuantType:      quantTypeFromNative(raw.qntType),
		FL:             raw.fl,
		ZP:             raw.zp,
		Scale:          raw.scale,
		WStride:        raw.wStride,
		SizeWithStride: raw.sizeWithStride,
		PassThrough:    raw.passThrough != 0,
		HStride:        raw.hStride,
	}

	if attr.Format == TensorFormatMax || attr.Type == TensorTypeMax || attr.QuantType == QuantTypeMax {
		logger().Debug("unrecognized tensor attribute enum",
			zap.Uint32("index", raw.index),
			zap.Uint32("fmt", raw.fmt),
			zap.Uint32("type", raw.typ),
			zap.Uint32("qnt_type", raw.qntType))
	}
	if raw.nDims > MaxDims {
		logger().Debug("tensor attribute n_dims exceeds capacity, clamped",
			zap.Uint32("index", raw.index),
			zap.Uint32("n_dims", raw.nDims))
	}
	return attr
}

// cCharsToString decodes a fixed-size char buffer up to the first NUL.
// Each maximal invalid UTF-8 subsequence becomes one U+FFFD.
func cCharsToString(chars []byte) string {
	if end := bytes.IndexByte(chars, 0); end >= 0 {
		chars = chars[:end]
	}
	if utf8.Valid(chars) {
		return string(chars)
	}

	var b strings.Builder
	b.Grow(len(chars) + 8)
	for len(chars) > 0 {
		r, size := utf8.DecodeRune(chars)
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			chars = chars[invalidSubsequenceLen(chars):]
			continue
		}
		b.Write(chars[:size])
		chars = chars[size:]
	}
	return b.String()
}

// invalidSubsequenceLen returns how many bytes at the start of b form a
// truncated but otherwise well-formed UTF-8 sequence, or 1 for a stray byte.
func invalidSubsequenceLen(b []byte) int {
	lead := b[0]
	var need int
	lo, hi := byte(0x80), byte(0xBF)
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead >= 0xE0 && lead <= 0xEF:
		need = 2
		if lead == 0xE0 {
			lo = 0xA0
		} else if lead == 0xED {
			hi = 0x9F
		}
	case lead >= 0xF0 && lead <= 0xF4:
		need = 3
		if lead == 0xF0 {
			lo = 0x90
		} else if lead == 0xF4 {
			hi = 0x8F
		}
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(b) {
		c := b[n]
		if c < lo || c > hi {
			break
		}
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}

func (raw *rawSDKVersion) toSDKVersion() SDKVersion {
	return SDKVersion{
		APIVersion:    cCharsToString(raw.apiVersion[:]),
		DriverVersion: cCharsToString(raw.drvVersion[:]),
	}
}
