package rknn

import (
	"unsafe"

	"go.uber.org/zap"
)

// TensorMemory is a runtime-allocated buffer (rknn_tensor_mem) that can be
// shared with the NPU without copying. It borrows its Session and must be
// destroyed before the session is.
//
// Once destroyed the handle is zeroed and every accessor fails with ErrReleased.
type TensorMemory struct {
	session *Session
	raw     uintptr
}

// CreateMem allocates size bytes of tensor memory.
func (s *Session) CreateMem(size uint32) (*TensorMemory, error) {
	const op = "rknn_create_mem"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return nil, err
	}
	raw := api.createMem(ctx, size)
	if raw == 0 {
		return nil, newError(KindNative, op, "%s failed.", op)
	}
	return s.newTensorMemory(raw, uint64(size), MemAllocDefault), nil
}

// CreateMem2 allocates size bytes of tensor memory with allocation flags.
func (s *Session) CreateMem2(size uint64, flags MemAllocFlags) (*TensorMemory, error) {
	const op = "rknn_create_mem2"
	api, ctx, err := s.borrow(op)
	if err != nil {
		return nil, err
	}
	if api.createMem2 == nil {
		return nil, unsupported(op)
	}
	raw := api.createMem2(ctx, size, uint64(flags))
	if raw == 0 {
		return nil, newError(KindNative, op, "%s failed.", op)
	}
	return s.newTensorMemory(raw, size, flags), nil
}

func (s *Session) newTensorMemory(raw uintptr, size uint64, flags MemAllocFlags) *TensorMemory {
	logger().Debug("tensor memory allocated", zap.Uint64("size", size), zap.Uint64("flags", uint64(flags)))
	return &TensorMemory{session: s, raw: raw}
}

func (m *TensorMemory) mem(op string) (*rawTensorMem, error) {
	if m == nil || m.raw == 0 {
		return nil, newError(KindReleased, op, "%s: tensor memory has been released", op)
	}
	if !m.session.IsValid() {
		return nil, newError(KindReleased, op, "%s: session has been destroyed", op)
	}
	// #nosec G103 -- raw is a live rknn_tensor_mem pointer returned by the runtime.
	return (*rawTensorMem)(unsafe.Pointer(m.raw)), nil
}

// Size returns the allocation size in bytes.
func (m *TensorMemory) Size() (uint32, error) {
	mem, err := m.mem("tensor memory size")
	if err != nil {
		return 0, err
	}
	return mem.size, nil
}

// Fd returns the dma-buf file descriptor backing the allocation.
func (m *TensorMemory) Fd() (int32, error) {
	mem, err := m.mem("tensor memory fd")
	if err != nil {
		return 0, err
	}
	return mem.fd, nil
}

// PhysAddr returns the physical address reported by the runtime.
func (m *TensorMemory) PhysAddr() (uint64, error) {
	mem, err := m.mem("tensor memory phys_addr")
	if err != nil {
		return 0, err
	}
	return mem.physAddr, nil
}

// Bytes returns a view of the allocation. A zero-size allocation yields an
// empty, non-nil slice without reading the virtual address.
func (m *TensorMemory) Bytes() ([]byte, error) {
	const op = "tensor memory bytes"
	mem, err := m.mem(op)
	if err != nil {
		return nil, err
	}
	if mem.size != 0 && mem.virtAddr == 0 {
		return nil, newError(KindIntegrity, op, "tensor memory points to a null buffer")
	}
	return nativeView[byte](op, mem.virtAddr, uintptr(mem.size), true)
}

// MemorySlice views the allocation as []T. The byte size must be a multiple of
// the size of T and the address aligned for T.
func MemorySlice[T Element](m *TensorMemory) ([]T, error) {
	const op = "tensor memory slice"
	mem, err := m.mem(op)
	if err != nil {
		return nil, err
	}
	if mem.size != 0 && mem.virtAddr == 0 {
		return nil, newError(KindIntegrity, op, "tensor memory points to a null buffer")
	}
	return nativeView[T](op, mem.virtAddr, uintptr(mem.size), true)
}

// WriteMemory copies data into the start of the allocation, leaving the rest
// untouched. Nothing is written when data does not fit.
func WriteMemory[T Element](m *TensorMemory, data []T) error {
	dst, err := MemorySlice[T](m)
	if err != nil {
		return err
	}
	if len(data) > len(dst) {
		return newError(KindInvalidArgument, "tensor memory write", "input data is too large: %d elements > %d elements", len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// Sync flushes or invalidates CPU caches for a cacheable allocation.
func (m *TensorMemory) Sync(mode MemSyncMode) error {
	const op = "rknn_mem_sync"
	if _, err := m.mem(op); err != nil {
		return err
	}
	api, ctx, err := m.session.borrow(op)
	if err != nil {
		return err
	}
	if api.memSync == nil {
		return unsupported(op)
	}
	if status := api.memSync(ctx, m.raw, uint32(mode)); status != 0 {
		return statusError(op, status)
	}
	return nil
}

// IsValid reports whether the memory has not been destroyed.
func (m *TensorMemory) IsValid() bool {
	return m != nil && m.raw != 0
}

// Destroy frees the allocation. Only the first call reaches the runtime.
func (m *TensorMemory) Destroy() error {
	const op = "rknn_destroy_mem"
	if m == nil || m.raw == 0 {
		return nil
	}
	raw := m.raw
	m.raw = 0

	api, ctx, err := m.session.borrow(op)
	if err != nil {
		logger().Warn("tensor memory destroyed after its session was destroyed")
		return err
	}
	if status := api.destroyMem(ctx, raw); status != 0 {
		return statusError(op, status)
	}
	return nil
}
