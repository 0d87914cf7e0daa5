//go:build !windows

package rknn

import (
	"sync"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fakeSlot is what the fake runtime hands back for one output slot.
type fakeSlot struct {
	buf  uintptr
	size uint32
}

// fakeEngine is an in-process stand-in for librknnrt. Buffers it hands out live
// outside the Go heap, like runtime memory does.
type fakeEngine struct {
	t *testing.T

	mu    sync.Mutex
	calls map[string]int

	nextContext   uint64
	initStatus    int32
	initLeavesCtx bool
	lastModelPath string
	lastModelSize uint32

	ioNum       rawInputOutputNum
	inputAttrs  []rawTensorAttr
	outputAttrs []rawTensorAttr
	sdk         rawSDKVersion
	perfRunUs   int64
	queryStatus int32

	runStatus int32
	inputs    []rawInput

	slots          []fakeSlot
	getStatus      int32
	releaseStatus  int32
	requested      [][]rawOutput
	releasedCounts []uint32
	releasedSlots  [][]rawOutput

	memNullVirt    bool
	memNullHandle  bool
	syncStatus     int32
	syncModes      []uint32
	destroyedMems  []uintptr
	destroyStatus  int32
	destroyedCtxs  []uint64
	coreMasks      []uint32
	batchCoreNums  []int32
	destroyMemCode int32
}

func installFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{t: t, calls: map[string]int{}, nextContext: 0x1000}
	api := f.api()

	mu.Lock()
	refCount = 1
	rknnLib = 0
	rknnAPI = api
	libPath = "fake://librknnrt.so"
	liveSessions = 0
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		refCount = 0
		rknnLib = 0
		rknnAPI = nil
		libPath = ""
		liveSessions = 0
		mu.Unlock()
	})
	return f
}

// withoutOptionals removes the entry points older runtimes lack.
func (f *fakeEngine) withoutOptionals() {
	mu.Lock()
	defer mu.Unlock()
	rknnAPI.createMem2 = nil
	rknnAPI.memSync = nil
	rknnAPI.setCoreMask = nil
	rknnAPI.setBatchCoreNum = nil
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeEngine) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

// alloc maps n bytes of zeroed anonymous memory, unmapped at test cleanup.
func (f *fakeEngine) alloc(n int) []byte {
	f.t.Helper()
	page := unix.Getpagesize()
	length := ((n + page - 1) / page) * page
	if length == 0 {
		length = page
	}
	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		f.t.Fatalf("mmap %d bytes: %v", length, err)
	}
	f.t.Cleanup(func() {
		_ = unix.Munmap(mem)
	})
	return mem[:n:length]
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b[:cap(b)])))
}

// float32Slot allocates a slot holding values.
func (f *fakeEngine) float32Slot(values ...float32) fakeSlot {
	buf := f.alloc(len(values) * 4)
	if len(values) > 0 {
		copy(unsafe.Slice((*float32)(unsafe.Pointer(&buf[:cap(buf)][0])), len(values)), values)
	}
	return fakeSlot{buf: addrOf(buf), size: uint32(len(values) * 4)}
}

// byteSlot allocates a slot of size bytes starting offset bytes into a page.
func (f *fakeEngine) byteSlot(size int, offset int) fakeSlot {
	buf := f.alloc(size + offset)
	for i := range buf {
		buf[i] = byte(i)
	}
	return fakeSlot{buf: addrOf(buf) + uintptr(offset), size: uint32(size)}
}

func (f *fakeEngine) api() *nativeAPI {
	return &nativeAPI{
		init: func(ctx *uint64, model unsafe.Pointer, size uint32, flag uint32, extend uintptr) int32 {
			f.hit("init")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.lastModelSize = size
			if size == 0 && model != nil {
				var path []byte
				for p := model; *(*byte)(p) != 0; p = unsafe.Add(p, 1) {
					path = append(path, *(*byte)(p))
				}
				f.lastModelPath = string(path)
			}
			if f.initStatus != 0 {
				if f.initLeavesCtx {
					*ctx = f.nextContext
					f.nextContext++
				}
				return f.initStatus
			}
			*ctx = f.nextContext
			f.nextContext++
			return 0
		},
		destroy: func(ctx uint64) int32 {
			f.hit("destroy")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.destroyedCtxs = append(f.destroyedCtxs, ctx)
			return f.destroyStatus
		},
		query: func(ctx uint64, cmd uint32, info unsafe.Pointer, size uint32) int32 {
			f.hit("query")
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.queryStatus != 0 {
				return f.queryStatus
			}
			switch cmd {
			case queryInOutNum:
				if size != uint32(unsafe.Sizeof(rawInputOutputNum{})) {
					return -5
				}
				*(*rawInputOutputNum)(info) = f.ioNum
			case queryInputAttr, queryOutputAttr:
				if size != uint32(unsafe.Sizeof(rawTensorAttr{})) {
					return -5
				}
				attr := (*rawTensorAttr)(info)
				attrs := f.inputAttrs
				if cmd == queryOutputAttr {
					attrs = f.outputAttrs
				}
				if int(attr.index) >= len(attrs) {
					return -5
				}
				*attr = attrs[attr.index]
			case querySDKVersion:
				*(*rawSDKVersion)(info) = f.sdk
			case queryPerfRun:
				*(*rawPerfRun)(info) = rawPerfRun{runDuration: f.perfRunUs}
			default:
				return -5
			}
			return 0
		},
		inputsSet: func(ctx uint64, n uint32, inputs *rawInput) int32 {
			f.hit("inputs_set")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.inputs = append(f.inputs, unsafe.Slice(inputs, n)...)
			return 0
		},
		run: func(ctx uint64, extend uintptr) int32 {
			f.hit("run")
			return f.runStatus
		},
		outputsGet: func(ctx uint64, n uint32, outputs *rawOutput, extend uintptr) int32 {
			f.hit("outputs_get")
			f.mu.Lock()
			defer f.mu.Unlock()
			batch := unsafe.Slice(outputs, n)
			f.requested = append(f.requested, append([]rawOutput(nil), batch...))
			if f.getStatus != 0 {
				return f.getStatus
			}
			for i := range batch {
				if i < len(f.slots) {
					batch[i].buf = f.slots[i].buf
					batch[i].size = f.slots[i].size
				}
			}
			return 0
		},
		outputsRelease: func(ctx uint64, n uint32, outputs *rawOutput) int32 {
			f.hit("outputs_release")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.releasedCounts = append(f.releasedCounts, n)
			f.releasedSlots = append(f.releasedSlots, append([]rawOutput(nil), unsafe.Slice(outputs, n)...))
			return f.releaseStatus
		},
		createMem: func(ctx uint64, size uint32) uintptr {
			f.hit("create_mem")
			return f.newMem(uint64(size), 0)
		},
		createMem2: func(ctx uint64, size uint64, flags uint64) uintptr {
			f.hit("create_mem2")
			return f.newMem(size, uint32(flags))
		},
		destroyMem: func(ctx uint64, mem uintptr) int32 {
			f.hit("destroy_mem")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.destroyedMems = append(f.destroyedMems, mem)
			return f.destroyMemCode
		},
		memSync: func(ctx uint64, mem uintptr, mode uint32) int32 {
			f.hit("mem_sync")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.syncModes = append(f.syncModes, mode)
			return f.syncStatus
		},
		setCoreMask: func(ctx uint64, mask uint32) int32 {
			f.hit("set_core_mask")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.coreMasks = append(f.coreMasks, mask)
			return 0
		},
		setBatchCoreNum: func(ctx uint64, n int32) int32 {
			f.hit("set_batch_core_num")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.batchCoreNums = append(f.batchCoreNums, n)
			return 0
		},
	}
}

func (f *fakeEngine) newMem(size uint64, flags uint32) uintptr {
	f.mu.Lock()
	nullHandle, nullVirt := f.memNullHandle, f.memNullVirt
	f.mu.Unlock()
	if nullHandle {
		return 0
	}

	header := f.alloc(int(unsafe.Sizeof(rawTensorMem{})))
	mem := (*rawTensorMem)(unsafe.Pointer(&header[0]))
	mem.size = uint32(size)
	mem.flags = flags
	mem.fd = 42
	mem.physAddr = 0xfe000000
	if !nullVirt {
		mem.virtAddr = addrOf(f.alloc(int(size)))
	}
	return addrOf(header)
}

func (f *fakeEngine) openSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open("/models/test.rknn")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Destroy()
	})
	return s
}

func fakeAttr(index uint32, name string, dims ...uint32) rawTensorAttr {
	attr := rawTensorAttr{
		index: index,
		nDims: uint32(len(dims)),
		typ:   uint32(TensorTypeFloat32),
		fmt:   uint32(TensorFormatNCHW),
	}
	copy(attr.dims[:], dims)
	copy(attr.name[:], name)
	elems := uint32(1)
	for _, d := range dims {
		elems *= d
	}
	attr.nElems = elems
	attr.size = elems * 4
	return attr
}
