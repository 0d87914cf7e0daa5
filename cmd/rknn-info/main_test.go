package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/amikos-tech/pure-rknn/rknn"
)

func TestFormatDims(t *testing.T) {
	if got := formatDims([]uint32{1, 3, 224, 224}); got != "[1x3x224x224]" {
		t.Fatalf("unexpected dims %q", got)
	}
	if got := formatDims(nil); got != "[]" {
		t.Fatalf("unexpected empty dims %q", got)
	}
}

func TestFormatValues(t *testing.T) {
	str := func(v int) string { return strings.Repeat("*", v) }
	if got := formatValues([]int{1, 2}, 3, str); got != "[* ** ...]" {
		t.Fatalf("unexpected truncated values %q", got)
	}
	if got := formatValues([]int{1}, 1, str); got != "[*]" {
		t.Fatalf("unexpected values %q", got)
	}
}

func TestFormatHalfValues(t *testing.T) {
	head := rknn.Float32ToFloat16([]float32{0.5, -2, 1000})
	if got := formatHalfValues(head, 4); got != "[0.5 -2 1000 ...]" {
		t.Fatalf("unexpected fp16 values %q", got)
	}
	if got := formatInt(int8(-14)); got != "-14" {
		t.Fatalf("unexpected int8 value %q", got)
	}
	if got := formatUint(uint8(200)); got != "200" {
		t.Fatalf("unexpected uint8 value %q", got)
	}
}

func TestAttrRows(t *testing.T) {
	rows := attrRows([]rknn.TensorAttr{{
		Index:     1,
		Name:      "output",
		Dims:      []uint32{1, 1000},
		Type:      rknn.TensorTypeInt8,
		Format:    rknn.TensorFormatNCHW,
		QuantType: rknn.QuantTypeAffineAsymmetric,
		ZP:        -14,
		Scale:     0.25,
		Size:      1000,
	}})
	want := [][]string{{"1", "output", "[1x1000]", "INT8", "NCHW", "AFFINE", "-14", "0.25", "1000"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestBootstrapCommandExplicitLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "librknnrt.so")
	if err := os.WriteFile(lib, []byte("lib"), 0o644); err != nil {
		t.Fatalf("failed to write library: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"bootstrap", "--lib", lib})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out.String()) != lib {
		t.Fatalf("expected %q, got %q", lib, out.String())
	}
}

func TestRunCommandRejectsBadCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "model.rknn", "--count", "0"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--count must be > 0") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInvalidCoreMask(t *testing.T) {
	opts := &rootOptions{coreMask: "7"}
	if _, err := opts.openSession("model.rknn"); err == nil || !strings.Contains(err.Error(), "unknown core mask") {
		t.Fatalf("unexpected error: %v", err)
	}
}
