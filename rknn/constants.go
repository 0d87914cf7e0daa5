package rknn

import "fmt"

const (
	// MaxDims is RKNN_MAX_DIMS, the capacity of the native dims array.
	MaxDims = 16
	// MaxNameLen is RKNN_MAX_NAME_LEN, the capacity of native name buffers.
	MaxNameLen = 256
)

// TensorType is rknn_tensor_type.
type TensorType uint32

const (
	TensorTypeFloat32 TensorType = iota
	TensorTypeFloat16
	TensorTypeInt8
	TensorTypeUint8
	TensorTypeInt16
	TensorTypeUint16
	TensorTypeInt32
	TensorTypeUint32
	TensorTypeInt64
	TensorTypeBool
	TensorTypeInt4
	TensorTypeBFloat16
	// TensorTypeMax is the terminal variant for values this binding does not know.
	TensorTypeMax
)

var tensorTypeNames = [...]string{
	TensorTypeFloat32:  "FP32",
	TensorTypeFloat16:  "FP16",
	TensorTypeInt8:     "INT8",
	TensorTypeUint8:    "UINT8",
	TensorTypeInt16:    "INT16",
	TensorTypeUint16:   "UINT16",
	TensorTypeInt32:    "INT32",
	TensorTypeUint32:   "UINT32",
	TensorTypeInt64:    "INT64",
	TensorTypeBool:     "BOOL",
	TensorTypeInt4:     "INT4",
	TensorTypeBFloat16: "BF16",
	TensorTypeMax:      "UNKNOWN",
}

// tensorTypeFromNative maps a native integer onto the closed set; anything
// outside it becomes TensorTypeMax.
func tensorTypeFromNative(v uint32) TensorType {
	if v >= uint32(TensorTypeMax) {
		return TensorTypeMax
	}
	return TensorType(v)
}

func (t TensorType) String() string {
	if t > TensorTypeMax {
		t = TensorTypeMax
	}
	return tensorTypeNames[t]
}

// TensorFormat is rknn_tensor_format.
type TensorFormat uint32

const (
	TensorFormatNCHW TensorFormat = iota
	TensorFormatNHWC
	TensorFormatNC1HWC2
	TensorFormatUndefined
	// TensorFormatMax is the terminal variant for values this binding does not know.
	TensorFormatMax
)

func tensorFormatFromNative(v uint32) TensorFormat {
	if v >= uint32(TensorFormatMax) {
		return TensorFormatMax
	}
	return TensorFormat(v)
}

func (f TensorFormat) String() string {
	switch f {
	case TensorFormatNCHW:
		return "NCHW"
	case TensorFormatNHWC:
		return "NHWC"
	case TensorFormatNC1HWC2:
		return "NC1HWC2"
	case TensorFormatUndefined:
		return "UNDEFINED"
	default:
		return "FormatMax"
	}
}

// QuantType is rknn_tensor_qnt_type.
type QuantType uint32

const (
	QuantTypeNone QuantType = iota
	QuantTypeDFP
	QuantTypeAffineAsymmetric
	// QuantTypeMax is the terminal variant for values this binding does not know.
	QuantTypeMax
)

func quantTypeFromNative(v uint32) QuantType {
	if v >= uint32(QuantTypeMax) {
		return QuantTypeMax
	}
	return QuantType(v)
}

func (q QuantType) String() string {
	switch q {
	case QuantTypeNone:
		return "NONE"
	case QuantTypeDFP:
		return "DFP"
	case QuantTypeAffineAsymmetric:
		return "AFFINE"
	default:
		return "QntMax"
	}
}

// CoreMask selects NPU cores on multi-core parts such as the RK3588.
type CoreMask uint32

const (
	CoreMaskAuto      CoreMask = 0
	CoreMask0         CoreMask = 1
	CoreMask1         CoreMask = 2
	CoreMask2         CoreMask = 4
	CoreMask01        CoreMask = CoreMask0 | CoreMask1
	CoreMask012       CoreMask = CoreMask0 | CoreMask1 | CoreMask2
	CoreMaskAll       CoreMask = 0xffff
	CoreMaskUndefined CoreMask = 0x10000
)

// ParseCoreMask accepts the names used by the CLI: auto, 0, 1, 2, 0_1, 0_1_2, all.
func ParseCoreMask(s string) (CoreMask, error) {
	switch s {
	case "", "auto":
		return CoreMaskAuto, nil
	case "0":
		return CoreMask0, nil
	case "1":
		return CoreMask1, nil
	case "2":
		return CoreMask2, nil
	case "0_1":
		return CoreMask01, nil
	case "0_1_2":
		return CoreMask012, nil
	case "all":
		return CoreMaskAll, nil
	default:
		return CoreMaskUndefined, fmt.Errorf("unknown core mask %q (expected auto, 0, 1, 2, 0_1, 0_1_2 or all)", s)
	}
}

// MemAllocFlags are the rknn_create_mem2 allocation flags.
type MemAllocFlags uint64

const (
	MemAllocDefault      MemAllocFlags = 0
	MemAllocCacheable    MemAllocFlags = 1 << 0
	MemAllocNonCacheable MemAllocFlags = 1 << 1
	MemAllocTryAllocSRAM MemAllocFlags = 1 << 2
)

// MemSyncMode is the cache coherency direction for (*TensorMemory).Sync.
type MemSyncMode uint32

const (
	MemSyncToDevice      MemSyncMode = 0x1
	MemSyncFromDevice    MemSyncMode = 0x2
	MemSyncBidirectional MemSyncMode = MemSyncToDevice | MemSyncFromDevice
)

func (m MemSyncMode) String() string {
	switch m {
	case MemSyncToDevice:
		return "to-device"
	case MemSyncFromDevice:
		return "from-device"
	case MemSyncBidirectional:
		return "bidirectional"
	default:
		return fmt.Sprintf("MemSyncMode(%d)", uint32(m))
	}
}

// rknn_query_cmd values used by this package.
const (
	queryInOutNum   uint32 = 0
	queryInputAttr  uint32 = 1
	queryOutputAttr uint32 = 2
	queryPerfRun    uint32 = 4
	querySDKVersion uint32 = 5
)
