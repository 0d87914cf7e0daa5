package rknn

import (
	"math"

	"github.com/x448/float16"
)

// Float16 is an IEEE 754 half-precision element. Outputs fetched with
// wantFloat=false from an FP16 model can be viewed as []Float16.
type Float16 = float16.Float16

// Float16ToFloat32 widens half-precision values.
func Float16ToFloat32(src []Float16) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = v.Float32()
	}
	return dst
}

// Float32ToFloat16 narrows values for FP16 inputs, rounding to nearest even.
func Float32ToFloat16(src []float32) []Float16 {
	dst := make([]Float16, len(src))
	for i, v := range src {
		dst[i] = float16.Fromfloat32(v)
	}
	return dst
}

// BFloat16ToFloat32 widens bfloat16 bit patterns, which are the upper half of a float32.
func BFloat16ToFloat32(src []uint16) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = math.Float32frombits(uint32(v) << 16)
	}
	return dst
}
