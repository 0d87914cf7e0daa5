package rknn

import (
	"fmt"
	"strings"
	"time"
)

// The raw* structs mirror the rknn_api.h layouts for 64-bit targets. Go applies
// the same natural alignment as the C ABI to these field types, so zero values
// are fully zeroed, padding included.

type rawInputOutputNum struct {
	nInput  uint32
	nOutput uint32
}

type rawTensorAttr struct {
	index          uint32
	nDims          uint32
	dims           [MaxDims]uint32
	name           [MaxNameLen]byte
	nElems         uint32
	size           uint32
	fmt            uint32
	typ            uint32
	qntType        uint32
	fl             int8
	zp             int32
	scale          float32
	wStride        uint32
	sizeWithStride uint32
	passThrough    uint8
	hStride        uint32
}

type rawSDKVersion struct {
	apiVersion [MaxNameLen]byte
	drvVersion [MaxNameLen]byte
}

type rawPerfRun struct {
	runDuration int64
}

type rawInput struct {
	index       uint32
	buf         uintptr
	size        uint32
	passThrough uint8
	typ         uint32
	fmt         uint32
}

type rawOutput struct {
	wantFloat  uint8
	isPrealloc uint8
	index      uint32
	buf        uintptr
	size       uint32
}

type rawTensorMem struct {
	virtAddr uintptr
	physAddr uint64
	fd       int32
	offset   int32
	size     uint32
	flags    uint32
	privData uintptr
}

// TensorAttr describes one input or output slot of a loaded model. It is an
// owned copy and holds no reference to native memory.
type TensorAttr struct {
	Index          uint32
	NDims          uint32
	Dims           []uint32
	Name           string
	NElems         uint32
	Size           uint32
	Format         TensorFormat
	Type           TensorType
	QuantType      QuantType
	FL             int8
	ZP             int32
	Scale          float32
	WStride        uint32
	SizeWithStride uint32
	PassThrough    bool
	HStride        uint32
}

func (a TensorAttr) String() string {
	dims := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("index=%d name=%s n_dims=%d dims=[%s] n_elems=%d size=%d fmt=%s type=%s qnt_type=%s zp=%d scale=%f",
		a.Index, a.Name, a.NDims, strings.Join(dims, ", "), a.NElems, a.Size, a.Format, a.Type, a.QuantType, a.ZP, a.Scale)
}

// SDKVersion holds the runtime API and driver version strings.
type SDKVersion struct {
	APIVersion    string
	DriverVersion string
}

// InputOutputNum is the number of model inputs and outputs.
type InputOutputNum struct {
	NInput  uint32
	NOutput uint32
}

// ModelInfo bundles the io counts and every tensor attribute of a model.
type ModelInfo struct {
	IONum       InputOutputNum
	InputAttrs  []TensorAttr
	OutputAttrs []TensorAttr
}

// PerfRun is the duration of the most recent Run as measured by the runtime.
type PerfRun struct {
	RunDuration time.Duration
}
