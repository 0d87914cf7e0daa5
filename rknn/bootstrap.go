package rknn

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRuntimeVersion is the rknn-toolkit2 release whose librknnrt.so bootstrap downloads.
	DefaultRuntimeVersion = "2.3.2"

	defaultBootstrapBaseURL = "https://raw.githubusercontent.com/airockchip/rknn-toolkit2"
	runtimeLibraryName      = "librknnrt.so"
	maxRuntimeLibraryBytes  = 256 << 20
)

var (
	bootstrapLockAcquireTimeout = 2 * time.Minute
	bootstrapLockRetryInterval  = 200 * time.Millisecond
	bootstrapLockLogInterval    = 10 * time.Second

	defaultSystemLibraryPaths = []string{
		"/usr/lib/librknnrt.so",
		"/usr/lib64/librknnrt.so",
		"/usr/local/lib/librknnrt.so",
	}

	bootstrapCacheFallbackWarnOnce sync.Once

	elfMagic = []byte{0x7f, 'E', 'L', 'F'}
)

// BootstrapOption configures EnsureRuntimeLibrary.
type BootstrapOption func(*bootstrapConfig) error

type bootstrapConfig struct {
	libraryPath     string
	cacheDir        string
	version         string
	disableDownload bool
	expectedSHA256  string
	baseURL         string
	httpClient      *http.Client
	systemPaths     []string
	goos            string
	goarch          string
}

type runtimeArtifact struct {
	arch string
}

// WithBootstrapLibraryPath forces bootstrap to use an existing librknnrt.so.
func WithBootstrapLibraryPath(path string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		path = strings.TrimSpace(path)
		if path == "" {
			return fmt.Errorf("bootstrap library path cannot be empty")
		}
		cfg.libraryPath = path
		return nil
	}
}

// WithBootstrapCacheDir sets the directory downloads are cached in.
func WithBootstrapCacheDir(dir string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("bootstrap cache directory cannot be empty")
		}
		cfg.cacheDir = dir
		return nil
	}
}

// WithBootstrapVersion sets the rknn-toolkit2 release to download (for example: 2.3.2).
func WithBootstrapVersion(version string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		version = strings.TrimSpace(version)
		if version == "" {
			return fmt.Errorf("bootstrap version cannot be empty")
		}
		cfg.version = version
		return nil
	}
}

// WithBootstrapDisableDownload enables or disables network download.
func WithBootstrapDisableDownload(disable bool) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		cfg.disableDownload = disable
		return nil
	}
}

// WithBootstrapExpectedSHA256 enforces a checksum on the downloaded library.
func WithBootstrapExpectedSHA256(checksum string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		checksum = strings.TrimSpace(strings.ToLower(checksum))
		if checksum == "" {
			return fmt.Errorf("expected SHA256 checksum cannot be empty")
		}
		if len(checksum) != 64 {
			return fmt.Errorf("expected SHA256 checksum must be 64 hex characters")
		}
		if _, err := hex.DecodeString(checksum); err != nil {
			return fmt.Errorf("expected SHA256 checksum must be lowercase hex")
		}
		cfg.expectedSHA256 = checksum
		return nil
	}
}

func withBootstrapBaseURL(baseURL string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return fmt.Errorf("bootstrap base URL cannot be empty")
		}
		cfg.baseURL = baseURL
		return nil
	}
}

func withBootstrapHTTPClient(client *http.Client) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if client == nil {
			return fmt.Errorf("bootstrap HTTP client cannot be nil")
		}
		cfg.httpClient = client
		return nil
	}
}

func withBootstrapSystemPaths(paths ...string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		cfg.systemPaths = paths
		return nil
	}
}

func withBootstrapPlatform(goos, goarch string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		cfg.goos = goos
		cfg.goarch = goarch
		return nil
	}
}

// EnsureRuntimeLibrary locates librknnrt.so and returns its absolute path.
//
// Lookup order: explicit path (option or RKNN_LIB_PATH), well-known system
// paths, the bootstrap cache, then a download from the rknn-toolkit2 tree
// into the cache.
func EnsureRuntimeLibrary(opts ...BootstrapOption) (string, error) {
	cfg, err := resolveBootstrapConfig(opts...)
	if err != nil {
		return "", err
	}
	if cfg.libraryPath != "" {
		return validateLibraryFile(cfg.libraryPath)
	}

	artifact, err := resolveRuntimeArtifact(cfg.goos, cfg.goarch)
	if err != nil {
		return "", err
	}
	installPath := cfg.installPath(artifact)
	if path, ok := firstUsableLibrary(append(slices.Clone(cfg.systemPaths), installPath)); ok {
		return path, nil
	}
	if cfg.disableDownload {
		return "", fmt.Errorf("RKNN runtime library not found in cache and download is disabled: %s", installPath)
	}

	if err := os.MkdirAll(filepath.Dir(installPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create bootstrap cache directory %q: %w", filepath.Dir(installPath), err)
	}

	var resolved string
	err = withProcessFileLock(cfg.lockPath(artifact), func() error {
		// A concurrent process may have finished the download while we waited.
		if path, ok := firstUsableLibrary([]string{installPath}); ok {
			resolved = path
			return nil
		}
		if err := downloadRuntimeLibrary(cfg, artifact.downloadURL(cfg.baseURL, cfg.version), installPath); err != nil {
			return err
		}
		path, err := validateLibraryFile(installPath)
		if err != nil {
			return fmt.Errorf("downloaded RKNN runtime library is not usable: %w", err)
		}
		resolved = path
		return nil
	})
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// InitializeEnvironmentWithBootstrap resolves the library via bootstrap, sets
// it as the shared library path and initializes the environment.
func InitializeEnvironmentWithBootstrap(opts ...BootstrapOption) error {
	path, err := EnsureRuntimeLibrary(opts...)
	if err != nil {
		return err
	}
	return initializeEnvironmentAt(path)
}

func resolveBootstrapConfig(opts ...BootstrapOption) (bootstrapConfig, error) {
	disableDownload, err := parseBootstrapBoolEnv("RKNN_DISABLE_DOWNLOAD")
	if err != nil {
		return bootstrapConfig{}, err
	}

	cfg := bootstrapConfig{
		libraryPath:     strings.TrimSpace(os.Getenv("RKNN_LIB_PATH")),
		cacheDir:        strings.TrimSpace(os.Getenv("RKNN_CACHE_DIR")),
		version:         cmp.Or(strings.TrimSpace(os.Getenv("RKNN_RUNTIME_VERSION")), DefaultRuntimeVersion),
		disableDownload: disableDownload,
		baseURL:         defaultBootstrapBaseURL,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		systemPaths:     defaultSystemLibraryPaths,
		goos:            runtime.GOOS,
		goarch:          runtime.GOARCH,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return bootstrapConfig{}, err
		}
	}

	if cfg.version, err = normalizeRuntimeVersion(cfg.version); err != nil {
		return bootstrapConfig{}, err
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = defaultBootstrapCacheDir()
	}
	cfg.cacheDir = filepath.Clean(cfg.cacheDir)
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return cfg, nil
}

// installPath is <cache>/<version>/<arch>/librknnrt.so.
func (cfg bootstrapConfig) installPath(a runtimeArtifact) string {
	return filepath.Join(cfg.cacheDir, cfg.version, a.arch, runtimeLibraryName)
}

func (cfg bootstrapConfig) lockPath(a runtimeArtifact) string {
	return filepath.Join(cfg.cacheDir, ".locks", a.arch+"-"+cfg.version+".lock")
}

func resolveRuntimeArtifact(goos, goarch string) (runtimeArtifact, error) {
	// 32-bit arm is excluded: rknn_context is 32 bits there and the native
	// struct layouts in this package are 64-bit only.
	if goos == "linux" && goarch == "arm64" {
		return runtimeArtifact{arch: "aarch64"}, nil
	}
	return runtimeArtifact{}, fmt.Errorf("unsupported platform for RKNN runtime bootstrap: GOOS=%s GOARCH=%s", goos, goarch)
}

func (a runtimeArtifact) downloadURL(baseURL, version string) string {
	return fmt.Sprintf("%s/v%s/rknpu2/runtime/Linux/librknn_api/%s/%s", strings.TrimRight(baseURL, "/"), version, a.arch, runtimeLibraryName)
}

func firstUsableLibrary(paths []string) (string, bool) {
	for _, candidate := range paths {
		if path, err := validateLibraryFile(candidate); err == nil {
			return path, true
		}
	}
	return "", false
}

func downloadRuntimeLibrary(cfg bootstrapConfig, url, installPath string) error {
	resp, err := cfg.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download RKNN runtime library from %q: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("failed to download RKNN runtime library from %q: HTTP %d: %s", url, resp.StatusCode, msg)
		}
		return fmt.Errorf("failed to download RKNN runtime library from %q: HTTP %d", url, resp.StatusCode)
	}
	if resp.ContentLength > maxRuntimeLibraryBytes {
		return fmt.Errorf("RKNN runtime library at %q exceeds size limit: %d bytes > %d bytes", url, resp.ContentLength, maxRuntimeLibraryBytes)
	}

	checksum, err := installRuntimeLibrary(resp.Body, installPath, cfg.expectedSHA256)
	if err != nil {
		return fmt.Errorf("failed to install RKNN runtime library from %q: %w", url, err)
	}
	logger().Info("RKNN runtime library downloaded", zap.String("url", url), zap.String("path", installPath), zap.String("sha256", checksum))
	return nil
}

// installRuntimeLibrary stages body next to installPath and renames it into
// place once its size, ELF header and checksum have been verified.
func installRuntimeLibrary(body io.Reader, installPath, expectedSHA256 string) (checksum string, err error) {
	staged, err := os.CreateTemp(filepath.Dir(installPath), "librknnrt-*.download")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary library file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = staged.Close()
			_ = os.Remove(staged.Name())
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(staged, hasher), io.LimitReader(body, maxRuntimeLibraryBytes+1))
	switch {
	case err != nil:
		return "", fmt.Errorf("failed to write %q: %w", staged.Name(), err)
	case written == 0:
		return "", fmt.Errorf("downloaded RKNN runtime library is empty")
	case written > maxRuntimeLibraryBytes:
		return "", fmt.Errorf("downloaded RKNN runtime library exceeds size limit of %d bytes", maxRuntimeLibraryBytes)
	}

	checksum = hex.EncodeToString(hasher.Sum(nil))
	if expectedSHA256 != "" && checksum != expectedSHA256 {
		return "", fmt.Errorf("download checksum mismatch: expected %s, got %s", expectedSHA256, checksum)
	}
	if err := checkELFHeader(staged); err != nil {
		return "", err
	}

	if err := staged.Chmod(0o755); err != nil {
		return "", fmt.Errorf("failed to set permissions on %q: %w", staged.Name(), err)
	}
	if err := staged.Close(); err != nil {
		return "", fmt.Errorf("failed to close %q: %w", staged.Name(), err)
	}
	if err := os.Rename(staged.Name(), installPath); err != nil {
		return "", fmt.Errorf("failed to move library into %q: %w", installPath, err)
	}
	return checksum, nil
}

// checkELFHeader rejects payloads that are not shared objects, such as an
// HTML error page or a git-lfs pointer served with status 200.
func checkELFHeader(f *os.File) error {
	magic := make([]byte, len(elfMagic))
	if _, err := f.ReadAt(magic, 0); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read library header: %w", err)
	}
	if !bytes.Equal(magic, elfMagic) {
		return fmt.Errorf("downloaded RKNN runtime library is not an ELF file")
	}
	return nil
}

func validateLibraryFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("library path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	switch {
	case err != nil:
		return "", fmt.Errorf("failed to stat library file %q: %w", absPath, err)
	case info.IsDir():
		return "", fmt.Errorf("library path points to a directory: %q", absPath)
	case info.Size() == 0:
		return "", fmt.Errorf("library file is empty: %q", absPath)
	}
	return absPath, nil
}

// withProcessFileLock runs fn while holding an exclusive flock on lockPath,
// polling until bootstrapLockAcquireTimeout.
func withProcessFileLock(lockPath string, fn func() error) (err error) {
	if fn == nil {
		return fmt.Errorf("lock callback is nil")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory for %q: %w", lockPath, err)
	}
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %q: %w", lockPath, err)
	}

	if err := acquireFileLock(file, lockPath); err != nil {
		return errors.Join(err, file.Close())
	}
	defer func() {
		err = errors.Join(err, unlockFile(file), file.Close())
	}()
	return fn()
}

func acquireFileLock(file *os.File, lockPath string) error {
	start := time.Now()
	deadline := start.Add(bootstrapLockAcquireTimeout)
	lastLog := start
	for {
		err := lockFile(file)
		if err == nil {
			return nil
		}
		if !isLockWouldBlock(err) {
			return fmt.Errorf("failed to acquire lock %q: %w", lockPath, err)
		}

		now := time.Now()
		if !now.Before(deadline) {
			return fmt.Errorf("timed out acquiring lock %q after %s", lockPath, bootstrapLockAcquireTimeout)
		}
		if now.Sub(lastLog) >= bootstrapLockLogInterval {
			logger().Info("waiting for bootstrap lock", zap.String("lock", lockPath), zap.Duration("waited", now.Sub(start)))
			lastLog = now
		}
		time.Sleep(bootstrapLockRetryInterval)
	}
}

func defaultBootstrapCacheDir() string {
	dir, err := os.UserCacheDir()
	if err == nil && dir != "" {
		return filepath.Join(dir, "pure-rknn", "runtime")
	}

	fallback := filepath.Join(os.TempDir(), "pure-rknn", "runtime")
	bootstrapCacheFallbackWarnOnce.Do(func() {
		logger().Warn("user cache directory unavailable, using temporary RKNN runtime cache; set RKNN_CACHE_DIR for a persistent cache",
			zap.String("fallback", fallback), zap.Error(err))
	})
	return fallback
}

var bootstrapBoolWords = map[string]bool{
	"1": true, "true": true, "t": true, "yes": true, "y": true, "on": true,
	"0": false, "false": false, "f": false, "no": false, "n": false, "off": false,
}

func parseBootstrapBoolEnv(name string) (bool, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return false, nil
	}
	parsed, ok := bootstrapBoolWords[strings.ToLower(value)]
	if !ok {
		return false, fmt.Errorf("invalid boolean value for %s: %q (expected true/false, 1/0, yes/no, on/off)", name, value)
	}
	return parsed, nil
}
