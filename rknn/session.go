package rknn

import (
	"fmt"
	"math"
	"runtime"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// Session owns one loaded model (an rknn_context). Outputs and tensor memory
// created from it borrow the context and stop working once it is destroyed.
//
// A Session is not safe for concurrent use; callers serialize Run, SetInput and
// output retrieval on the same session.
type Session struct {
	api     *nativeAPI
	context uint64
	model   string
}

// Open loads a compiled .rknn model from a filesystem path.
func Open(modelPath string) (*Session, error) {
	const op = "rknn_init"
	if modelPath == "" {
		return nil, newError(KindInvalidArgument, op, "model path cannot be empty")
	}
	pathBytes, err := goStringToCString(op, modelPath)
	if err != nil {
		return nil, newError(KindInvalidArgument, op, "invalid model path: %v", err)
	}
	api, err := currentAPI(op)
	if err != nil {
		return nil, err
	}

	s := &Session{api: api, model: modelPath}
	// size 0 tells the runtime that model is a path rather than model bytes.
	status := api.init(&s.context, cStringPointer(pathBytes), 0, 0, 0)
	runtime.KeepAlive(pathBytes)
	if status != 0 {
		s.discardFailedInit()
		return nil, statusError(op, status)
	}
	return s.opened(), nil
}

// OpenModelData loads a model from an in-memory .rknn image.
func OpenModelData(model []byte) (*Session, error) {
	const op = "rknn_init"
	if len(model) == 0 {
		return nil, newError(KindInvalidArgument, op, "model data cannot be empty")
	}
	if uint64(len(model)) > math.MaxUint32 {
		return nil, newError(KindInvalidArgument, op, "model data too large: %d bytes", len(model))
	}
	api, err := currentAPI(op)
	if err != nil {
		return nil, err
	}

	pinner := &runtime.Pinner{}
	pinner.Pin(unsafe.SliceData(model))
	defer pinner.Unpin()

	s := &Session{api: api, model: fmt.Sprintf("<memory:%d bytes>", len(model))}
	status := api.init(&s.context, unsafe.Pointer(unsafe.SliceData(model)), uint32(len(model)), 0, 0)
	if status != 0 {
		s.discardFailedInit()
		return nil, statusError(op, status)
	}
	return s.opened(), nil
}

func (s *Session) opened() *Session {
	trackSession(1)
	logger().Debug("RKNN session opened", zap.String("model", s.model), zap.Uint64("context", s.context))
	return s
}

// discardFailedInit destroys a context the runtime wrote before failing init.
func (s *Session) discardFailedInit() {
	if s.context == 0 {
		return
	}
	ctx := s.context
	s.context = 0
	if status := s.api.destroy(ctx); status != 0 {
		logger().Warn("rknn_destroy after failed init returned nonzero status", zap.Int32("status", status))
	}
}

// Destroy releases the context. Only the first call reaches the runtime.
func (s *Session) Destroy() error {
	if s == nil || s.context == 0 {
		return nil
	}
	ctx := s.context
	s.context = 0
	trackSession(-1)

	if status := s.api.destroy(ctx); status != 0 {
		return statusError("rknn_destroy", status)
	}
	logger().Debug("RKNN session destroyed", zap.String("model", s.model))
	return nil
}

// IsValid reports whether the session has not been destroyed.
func (s *Session) IsValid() bool {
	return s != nil && s.context != 0
}

func (s *Session) borrow(op string) (*nativeAPI, uint64, error) {
	if s == nil || s.context == 0 {
		return nil, 0, newError(KindReleased, op, "%s: session has been destroyed", op)
	}
	return s.api, s.context, nil
}

// Run executes inference synchronously on the inputs set so far.
func (s *Session) Run() error {
	const op = "rknn_run"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return err
	}
	if status := api.run(ctx, 0); status != 0 {
		return statusError(op, status)
	}
	return nil
}

// Input describes one model input for SetInput.
type Input[T Element] struct {
	Index       uint32
	Buf         []T
	PassThrough bool
	Type        TensorType
	Format      TensorFormat
}

// SetInput copies one input buffer into the runtime.
func SetInput[T Element](s *Session, in Input[T]) error {
	var zero T
	byteLen := uint64(len(in.Buf)) * uint64(unsafe.Sizeof(zero))
	return s.setInput(in.Index, unsafe.Pointer(unsafe.SliceData(in.Buf)), len(in.Buf) > 0, byteLen, in.PassThrough, in.Type, in.Format)
}

// SetInputBytes is SetInput for raw bytes.
func (s *Session) SetInputBytes(index uint32, buf []byte, passThrough bool, typ TensorType, format TensorFormat) error {
	return SetInput(s, Input[byte]{Index: index, Buf: buf, PassThrough: passThrough, Type: typ, Format: format})
}

func (s *Session) setInput(index uint32, data unsafe.Pointer, nonEmpty bool, byteLen uint64, passThrough bool, typ TensorType, format TensorFormat) error {
	const op = "rknn_inputs_set"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return err
	}
	if byteLen > math.MaxUint32 {
		return newError(KindInvalidArgument, op, "%s: input %d is too large: %d bytes", op, index, byteLen)
	}

	in := rawInput{
		index: index,
		size:  uint32(byteLen),
		typ:   uint32(typ),
		fmt:   uint32(format),
	}
	if passThrough {
		in.passThrough = 1
	}

	var pinner runtime.Pinner
	if nonEmpty {
		pinner.Pin(data)
		// #nosec G103 -- backing array is pinned for the duration of the call.
		in.buf = uintptr(data)
	}
	status := api.inputsSet(ctx, 1, &in)
	pinner.Unpin()
	if status != 0 {
		return statusError(op, status)
	}
	return nil
}

// SDKVersion queries the runtime API and driver versions.
func (s *Session) SDKVersion() (SDKVersion, error) {
	var raw rawSDKVersion
	if err := s.query("rknn_query sdk_version", querySDKVersion, unsafe.Pointer(&raw), unsafe.Sizeof(raw)); err != nil {
		return SDKVersion{}, err
	}
	return raw.toSDKVersion(), nil
}

// IONum queries the number of model inputs and outputs.
func (s *Session) IONum() (InputOutputNum, error) {
	var raw rawInputOutputNum
	if err := s.query("rknn_query in_out_num", queryInOutNum, unsafe.Pointer(&raw), unsafe.Sizeof(raw)); err != nil {
		return InputOutputNum{}, err
	}
	return InputOutputNum{NInput: raw.nInput, NOutput: raw.nOutput}, nil
}

// PerfRun returns the runtime-measured duration of the last Run.
func (s *Session) PerfRun() (PerfRun, error) {
	var raw rawPerfRun
	if err := s.query("rknn_query perf_run", queryPerfRun, unsafe.Pointer(&raw), unsafe.Sizeof(raw)); err != nil {
		return PerfRun{}, err
	}
	return PerfRun{RunDuration: time.Duration(raw.runDuration) * time.Microsecond}, nil
}

// InputAttrs returns the attributes of every model input.
func (s *Session) InputAttrs() ([]TensorAttr, error) {
	ioNum, err := s.IONum()
	if err != nil {
		return nil, err
	}
	return s.queryTensorAttrs(queryInputAttr, ioNum.NInput)
}

// OutputAttrs returns the attributes of every model output.
func (s *Session) OutputAttrs() ([]TensorAttr, error) {
	ioNum, err := s.IONum()
	if err != nil {
		return nil, err
	}
	return s.queryTensorAttrs(queryOutputAttr, ioNum.NOutput)
}

// ModelInfo returns io counts plus all input and output attributes.
func (s *Session) ModelInfo() (ModelInfo, error) {
	ioNum, err := s.IONum()
	if err != nil {
		return ModelInfo{}, err
	}
	inputs, err := s.queryTensorAttrs(queryInputAttr, ioNum.NInput)
	if err != nil {
		return ModelInfo{}, err
	}
	outputs, err := s.queryTensorAttrs(queryOutputAttr, ioNum.NOutput)
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{IONum: ioNum, InputAttrs: inputs, OutputAttrs: outputs}, nil
}

// Info logs the model's io counts and tensor attributes at info level.
func (s *Session) Info() error {
	info, err := s.ModelInfo()
	if err != nil {
		return err
	}
	log := logger()
	log.Info("model io", zap.Uint32("n_input", info.IONum.NInput), zap.Uint32("n_output", info.IONum.NOutput))
	for _, attr := range info.InputAttrs {
		log.Info("input", zap.Stringer("attr", attr))
	}
	for _, attr := range info.OutputAttrs {
		log.Info("output", zap.Stringer("attr", attr))
	}
	return nil
}

// SetCoreMask pins the session to a set of NPU cores.
func (s *Session) SetCoreMask(mask CoreMask) error {
	const op = "rknn_set_core_mask"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return err
	}
	if api.setCoreMask == nil {
		return unsupported(op)
	}
	if status := api.setCoreMask(ctx, uint32(mask)); status != 0 {
		return statusError(op, status)
	}
	return nil
}

// SetBatchCoreNum sets how many NPU cores a multi-batch model spreads over.
func (s *Session) SetBatchCoreNum(n int) error {
	const op = "rknn_set_batch_core_num"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return err
	}
	if api.setBatchCoreNum == nil {
		return unsupported(op)
	}
	if n <= 0 || n > math.MaxInt32 {
		return newError(KindInvalidArgument, op, "%s: core count must be > 0, got %d", op, n)
	}
	if status := api.setBatchCoreNum(ctx, int32(n)); status != 0 {
		return statusError(op, status)
	}
	return nil
}

func (s *Session) query(op string, cmd uint32, info unsafe.Pointer, size uintptr) error {
	api, ctx, err := s.borrow(op)
	if err != nil {
		return err
	}
	if status := api.query(ctx, cmd, info, uint32(size)); status != 0 {
		return statusError(op, status)
	}
	return nil
}

func (s *Session) queryTensorAttr(cmd uint32, index uint32) (TensorAttr, error) {
	raw := rawTensorAttr{index: index}
	if err := s.query("rknn_query tensor_attr", cmd, unsafe.Pointer(&raw), unsafe.Sizeof(raw)); err != nil {
		return TensorAttr{}, err
	}
	return raw.toTensorAttr(), nil
}

func (s *Session) queryTensorAttrs(cmd uint32, count uint32) ([]TensorAttr, error) {
	attrs := make([]TensorAttr, 0, count)
	for i := uint32(0); i < count; i++ {
		attr, err := s.queryTensorAttr(cmd, i)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}
