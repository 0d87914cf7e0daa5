package rknn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	mu           sync.Mutex
	refCount     int
	liveSessions int
	rknnLib      uintptr
	rknnAPI      *nativeAPI
	libPath      string

	pkgLogger atomic.Pointer[zap.Logger]
	nopLogger = zap.NewNop()
)

// SetLogger replaces the package logger. A nil logger restores the default no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		pkgLogger.Store(nil)
		return
	}
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// SetSharedLibraryPath sets the path to librknnrt.so. It cannot be changed
// while the environment is initialized.
func SetSharedLibraryPath(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		return fmt.Errorf("cannot change library path after environment is initialized")
	}
	libPath = path
	return nil
}

// InitializeEnvironment loads the runtime library and binds its entry points.
// Calls are reference counted; each successful call must be paired with
// DestroyEnvironment.
func InitializeEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		refCount++
		return nil
	}

	if libPath == "" {
		return fmt.Errorf("library path not set, call SetSharedLibraryPath first")
	}

	lib, err := loadLibrary(libPath)
	if err != nil {
		return fmt.Errorf("failed to load RKNN runtime library %q: %w", libPath, err)
	}
	if lib == 0 {
		return fmt.Errorf("failed to load RKNN runtime library %q", libPath)
	}

	api, err := bindNativeAPI(lib)
	if err != nil {
		if closeErr := closeLibrary(lib); closeErr != nil {
			err = fmt.Errorf("%w (close failed: %v)", err, closeErr)
		}
		return err
	}

	rknnLib = lib
	rknnAPI = api
	refCount = 1
	logger().Info("RKNN runtime library loaded", zap.String("path", libPath))
	return nil
}

// initializeEnvironmentAt adopts path and adds a reference, failing if the
// environment is already running a different library.
func initializeEnvironmentAt(path string) error {
	mu.Lock()
	if refCount > 0 && libPath != path {
		current := libPath
		mu.Unlock()
		return fmt.Errorf("cannot change library path after environment is initialized (loaded %q, requested %q)", current, path)
	}
	if refCount == 0 {
		libPath = path
	}
	mu.Unlock()
	return InitializeEnvironment()
}

// DestroyEnvironment drops one reference and unloads the library when the last
// reference goes away. Unloading is refused while sessions are still open.
func DestroyEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 {
		return nil
	}
	if refCount > 1 {
		refCount--
		return nil
	}
	if liveSessions > 0 {
		return fmt.Errorf("cannot unload RKNN runtime library: %d session(s) still open", liveSessions)
	}

	lib := rknnLib
	refCount = 0
	rknnLib = 0
	rknnAPI = nil

	if err := closeLibrary(lib); err != nil {
		return fmt.Errorf("failed to unload RKNN runtime library: %w", err)
	}
	logger().Info("RKNN runtime library unloaded", zap.String("path", libPath))
	return nil
}

// IsInitialized returns true if the environment is initialized.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return refCount > 0
}

func currentAPI(op string) (*nativeAPI, error) {
	mu.Lock()
	defer mu.Unlock()
	if refCount == 0 || rknnAPI == nil {
		return nil, newError(KindNotInitialized, op, "%s: RKNN runtime not initialized", op)
	}
	return rknnAPI, nil
}

func trackSession(delta int) {
	mu.Lock()
	liveSessions += delta
	mu.Unlock()
}
