package rknn

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// nativeAPI is the procedural rknn_api.h surface. Every entry returns a status
// where zero means success, except the mem constructors which return a
// rknn_tensor_mem pointer (zero on failure).
type nativeAPI struct {
	init            func(ctx *uint64, model unsafe.Pointer, size uint32, flag uint32, extend uintptr) int32
	destroy         func(ctx uint64) int32
	query           func(ctx uint64, cmd uint32, info unsafe.Pointer, size uint32) int32
	inputsSet       func(ctx uint64, n uint32, inputs *rawInput) int32
	run             func(ctx uint64, extend uintptr) int32
	outputsGet      func(ctx uint64, n uint32, outputs *rawOutput, extend uintptr) int32
	outputsRelease  func(ctx uint64, n uint32, outputs *rawOutput) int32
	createMem       func(ctx uint64, size uint32) uintptr
	createMem2      func(ctx uint64, size uint64, flags uint64) uintptr
	destroyMem      func(ctx uint64, mem uintptr) int32
	memSync         func(ctx uint64, mem uintptr, mode uint32) int32
	setCoreMask     func(ctx uint64, mask uint32) int32
	setBatchCoreNum func(ctx uint64, n int32) int32
}

type nativeSymbol struct {
	name     string
	fptr     any
	optional bool
}

// bindNativeAPI resolves every entry point from an opened librknnrt handle.
// Entry points added in later runtime releases are optional and stay nil when
// missing; callers report them as unsupported.
func bindNativeAPI(lib uintptr) (*nativeAPI, error) {
	api := &nativeAPI{}
	symbols := []nativeSymbol{
		{name: "rknn_init", fptr: &api.init},
		{name: "rknn_destroy", fptr: &api.destroy},
		{name: "rknn_query", fptr: &api.query},
		{name: "rknn_inputs_set", fptr: &api.inputsSet},
		{name: "rknn_run", fptr: &api.run},
		{name: "rknn_outputs_get", fptr: &api.outputsGet},
		{name: "rknn_outputs_release", fptr: &api.outputsRelease},
		{name: "rknn_create_mem", fptr: &api.createMem},
		{name: "rknn_destroy_mem", fptr: &api.destroyMem},
		{name: "rknn_create_mem2", fptr: &api.createMem2, optional: true},
		{name: "rknn_mem_sync", fptr: &api.memSync, optional: true},
		{name: "rknn_set_core_mask", fptr: &api.setCoreMask, optional: true},
		{name: "rknn_set_batch_core_num", fptr: &api.setBatchCoreNum, optional: true},
	}

	for _, sym := range symbols {
		addr, err := getSymbol(lib, sym.name)
		if err != nil || addr == 0 {
			if sym.optional {
				continue
			}
			if err == nil {
				err = fmt.Errorf("symbol address is null")
			}
			return nil, fmt.Errorf("failed to resolve %s: %w", sym.name, err)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}

	return api, nil
}

func unsupported(op string) error {
	return newError(KindNotInitialized, op, "%s is not supported by the loaded runtime library", op)
}
