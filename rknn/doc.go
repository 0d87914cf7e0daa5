// Package rknn is a cgo-free binding to the Rockchip RKNN runtime (librknnrt.so).
//
// The library is loaded at run time with purego:
//
//	if err := rknn.InitializeEnvironmentWithBootstrap(); err != nil { ... }
//	defer rknn.DestroyEnvironment()
//
//	s, err := rknn.Open("model.rknn")
//	...
//	defer s.Destroy()
//
// Outputs are zero-copy views. GetOutput acquires every output slot of the last
// Run as one batch and (*Output[T]).Release hands the whole batch back, so at
// most one Output per session should be live at a time. Output and TensorMemory
// borrow their Session; once the session is destroyed they report ErrReleased.
package rknn
