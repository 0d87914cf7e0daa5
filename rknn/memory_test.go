//go:build !windows

package rknn

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCreateMemAccessors(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	size, err := mem.Size()
	if err != nil || size != 64 {
		t.Fatalf("expected size 64, got %d (err=%v)", size, err)
	}
	fd, err := mem.Fd()
	if err != nil || fd != 42 {
		t.Fatalf("expected fd 42, got %d (err=%v)", fd, err)
	}
	phys, err := mem.PhysAddr()
	if err != nil || phys != 0xfe000000 {
		t.Fatalf("unexpected phys addr %#x (err=%v)", phys, err)
	}

	b, err := mem.Bytes()
	if err != nil {
		t.Fatalf("unexpected bytes error: %v", err)
	}
	if len(b) != 64 {
		t.Fatalf("expected 64 bytes, got %d", len(b))
	}
}

func TestCreateMemNullHandle(t *testing.T) {
	f := installFakeEngine(t)
	f.memNullHandle = true
	s := f.openSession(t)

	_, err := s.CreateMem(16)
	if err == nil || err.Error() != "rknn_create_mem failed." {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTensorMemoryZeroSizeNullAddress(t *testing.T) {
	f := installFakeEngine(t)
	f.memNullVirt = true
	s := f.openSession(t)

	mem, err := s.CreateMem(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	b, err := mem.Bytes()
	if err != nil {
		t.Fatalf("zero-size view should not read the address, got: %v", err)
	}
	if b == nil || len(b) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", b)
	}

	floats, err := MemorySlice[float32](mem)
	if err != nil || len(floats) != 0 {
		t.Fatalf("expected empty float view, got %v (err=%v)", floats, err)
	}
}

func TestTensorMemoryNullAddressWithSize(t *testing.T) {
	f := installFakeEngine(t)
	f.memNullVirt = true
	s := f.openSession(t)

	mem, err := s.CreateMem(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	if _, err := mem.Bytes(); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error, got: %v", err)
	}
}

func TestWriteMemory(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	if err := WriteMemory(mem, []float32{7, 7, 7, 7}); err != nil {
		t.Fatalf("unexpected fill error: %v", err)
	}
	if err := WriteMemory(mem, []float32{1, 2}); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	got, err := MemorySlice[float32](mem)
	if err != nil {
		t.Fatalf("unexpected view error: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 2, 7, 7}, got); diff != "" {
		t.Fatalf("prefix write mismatch (-want +got):\n%s", diff)
	}

	err = WriteMemory(mem, []float32{9, 9, 9, 9, 9})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for oversize write, got: %v", err)
	}
	if !strings.Contains(err.Error(), "input data is too large: 5 elements > 4 elements") {
		t.Fatalf("unexpected error message: %v", err)
	}
	got, _ = MemorySlice[float32](mem)
	if diff := cmp.Diff([]float32{1, 2, 7, 7}, got); diff != "" {
		t.Fatalf("oversize write must not copy anything (-want +got):\n%s", diff)
	}
}

func TestMemorySliceTypeMismatch(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem(6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	_, err = MemorySlice[float32](mem)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got: %v", err)
	}
	if !strings.Contains(err.Error(), "float32") {
		t.Fatalf("expected error to name the element type, got: %v", err)
	}

	halves, err := MemorySlice[uint16](mem)
	if err != nil || len(halves) != 3 {
		t.Fatalf("expected 3 uint16 elements, got %d (err=%v)", len(halves), err)
	}
}

func TestTensorMemoryDestroy(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mem.IsValid() {
		t.Fatalf("expected valid memory")
	}
	if err := mem.Destroy(); err != nil {
		t.Fatalf("unexpected destroy error: %v", err)
	}
	if err := mem.Destroy(); err != nil {
		t.Fatalf("second destroy should be a no-op, got: %v", err)
	}
	if got := f.count("destroy_mem"); got != 1 {
		t.Fatalf("expected one destroy call, got %d", got)
	}
	if mem.IsValid() {
		t.Fatalf("expected invalid memory after destroy")
	}

	if _, err := mem.Size(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error from Size, got: %v", err)
	}
	if _, err := mem.Bytes(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error from Bytes, got: %v", err)
	}
	if err := WriteMemory(mem, []byte{1}); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error from WriteMemory, got: %v", err)
	}
}

func TestTensorMemoryAfterSessionDestroyed(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("unexpected session destroy error: %v", err)
	}

	if _, err := mem.Fd(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error, got: %v", err)
	}
	if err := mem.Destroy(); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released error from Destroy, got: %v", err)
	}
	if got := f.count("destroy_mem"); got != 0 {
		t.Fatalf("expected no destroy_mem against destroyed context, got %d", got)
	}
}

func TestTensorMemorySync(t *testing.T) {
	f := installFakeEngine(t)
	s := f.openSession(t)

	mem, err := s.CreateMem2(32, MemAllocCacheable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()

	if err := mem.Sync(MemSyncToDevice); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	f.syncStatus = -4
	err = mem.Sync(MemSyncFromDevice)
	if err == nil || err.Error() != "rknn_mem_sync failed. exit code:-4" {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 2}, f.syncModes); diff != "" {
		t.Fatalf("sync modes mismatch (-want +got):\n%s", diff)
	}
}

func TestTensorMemoryOptionalEntryPoints(t *testing.T) {
	f := installFakeEngine(t)
	f.withoutOptionals()
	s := f.openSession(t)

	if _, err := s.CreateMem2(8, MemAllocDefault); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected unsupported error from CreateMem2, got: %v", err)
	}

	mem, err := s.CreateMem(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = mem.Destroy() }()
	if err := mem.Sync(MemSyncBidirectional); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected unsupported error from Sync, got: %v", err)
	}
}
