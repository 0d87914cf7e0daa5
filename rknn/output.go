package rknn

import (
	"errors"

	"go.uber.org/zap"
)

// Output is a zero-copy typed view of one model output.
//
// The runtime hands outputs back as a batch covering every output slot of the
// model and expects that same batch back in a single release call, whichever
// slots were actually read. Output therefore holds the whole batch and releases
// it exactly once in Release. The slice returned by Data aliases runtime memory
// and must not be used after Release or after the session is destroyed.
type Output[T Element] struct {
	session *Session
	index   uint32
	data    []T
	batch   []rawOutput
}

// GetOutput acquires all outputs of the last Run and exposes output index as []T.
//
// With wantFloat the runtime converts the output to float32 first. The element
// count is the slot's byte size divided by the size of T, truncated.
func GetOutput[T Element](s *Session, index uint32, wantFloat bool) (*Output[T], error) {
	const op = "rknn_outputs_get"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return nil, err
	}

	ioNum, err := s.IONum()
	if err != nil {
		return nil, err
	}
	n := ioNum.NOutput
	if index >= n {
		return nil, newError(KindInvalidArgument, op, "output index %d out of range (model has %d outputs)", index, n)
	}

	// make zeroes every slot, padding included.
	batch := make([]rawOutput, n)
	var flag uint8
	if wantFloat {
		flag = 1
	}
	for i := range batch {
		batch[i].wantFloat = flag
		batch[i].isPrealloc = 0
		batch[i].index = uint32(i)
	}

	if status := api.outputsGet(ctx, n, &batch[0], 0); status != 0 {
		return nil, statusError(op, status)
	}

	slot := batch[index]
	if slot.buf == 0 {
		releaseErr := releaseBatch(api, ctx, batch)
		err := newError(KindIntegrity, op, "%s returned null buffer for output index %d", op, index)
		return nil, errors.Join(err, releaseErr)
	}

	data, err := nativeView[T](op, slot.buf, uintptr(slot.size), false)
	if err != nil {
		return nil, errors.Join(err, releaseBatch(api, ctx, batch))
	}

	return &Output[T]{
		session: s,
		index:   index,
		data:    data,
		batch:   batch,
	}, nil
}

// GetFirstOutput returns output 0 converted to float32 by the runtime.
func GetFirstOutput[T Element](s *Session) (*Output[T], error) {
	return GetOutput[T](s, 0, true)
}

// CopyOutput acquires one output, copies it into Go memory and releases the batch.
func CopyOutput[T Element](s *Session, index uint32, wantFloat bool) ([]T, error) {
	out, err := GetOutput[T](s, index, wantFloat)
	if err != nil {
		return nil, err
	}
	data, err := out.Copy()
	if releaseErr := out.Release(); releaseErr != nil {
		return nil, errors.Join(err, releaseErr)
	}
	return data, err
}

func (o *Output[T]) live(op string) error {
	if o == nil || o.batch == nil {
		return newError(KindReleased, op, "%s: output has been released", op)
	}
	if !o.session.IsValid() {
		return newError(KindReleased, op, "%s: session has been destroyed", op)
	}
	return nil
}

// Data returns the typed view into runtime memory.
func (o *Output[T]) Data() ([]T, error) {
	if err := o.live("output data"); err != nil {
		return nil, err
	}
	return o.data, nil
}

// Copy returns a Go-owned copy of the output.
func (o *Output[T]) Copy() ([]T, error) {
	data, err := o.Data()
	if err != nil {
		return nil, err
	}
	return append(make([]T, 0, len(data)), data...), nil
}

// Len returns the number of elements in the view, or 0 once released.
func (o *Output[T]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.data)
}

// Index returns the output slot this view exposes.
func (o *Output[T]) Index() uint32 {
	return o.index
}

// BatchSize returns the number of slots held for release, or 0 once released.
func (o *Output[T]) BatchSize() int {
	if o == nil {
		return 0
	}
	return len(o.batch)
}

// Release hands the whole output batch back to the runtime. Only the first
// call has an effect. If the session was destroyed first, the runtime has
// already reclaimed the batch and Release reports ErrReleased without calling it.
func (o *Output[T]) Release() error {
	if o == nil || o.batch == nil {
		return nil
	}
	batch := o.batch
	o.batch = nil
	o.data = nil

	api, ctx, err := o.session.borrow("rknn_outputs_release")
	if err != nil {
		logger().Warn("output released after its session was destroyed", zap.Uint32("index", o.index))
		return err
	}
	return releaseBatch(api, ctx, batch)
}

func releaseBatch(api *nativeAPI, ctx uint64, batch []rawOutput) error {
	const op = "rknn_outputs_release"
	if len(batch) == 0 {
		return nil
	}
	if status := api.outputsRelease(ctx, uint32(len(batch)), &batch[0]); status != 0 {
		logger().Warn("output batch release failed", zap.Int("slots", len(batch)), zap.Int32("status", status))
		return statusError(op, status)
	}
	return nil
}
