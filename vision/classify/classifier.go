// Package classify runs single-input image classification models compiled to
// .rknn on the NPU and turns the class scores into ranked predictions.
package classify

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/amikos-tech/pure-rknn/internal/rkutil"
	"github.com/amikos-tech/pure-rknn/rknn"
)

// DefaultTopK is the number of predictions Classify returns unless WithTopK is used.
const DefaultTopK = 5

// Option customizes classifier initialization.
type Option func(*config) error

type config struct {
	topK            int
	outputIndex     uint32
	coreMask        rknn.CoreMask
	quantizedOutput bool
	softmax         bool
}

func defaultConfig() config {
	return config{
		topK:     DefaultTopK,
		coreMask: rknn.CoreMaskAuto,
	}
}

// WithTopK sets how many predictions Classify returns.
func WithTopK(k int) Option {
	return func(cfg *config) error {
		if k <= 0 {
			return fmt.Errorf("top-k must be > 0, got %d", k)
		}
		cfg.topK = k
		return nil
	}
}

// WithOutputIndex selects which model output holds the class scores.
func WithOutputIndex(index uint32) Option {
	return func(cfg *config) error {
		cfg.outputIndex = index
		return nil
	}
}

// WithCoreMask pins the model to a set of NPU cores.
func WithCoreMask(mask rknn.CoreMask) Option {
	return func(cfg *config) error {
		cfg.coreMask = mask
		return nil
	}
}

// WithQuantizedOutput reads the scores as raw INT8 and dequantizes them on the
// CPU with the output's zero point and scale, instead of asking the runtime
// for float32.
func WithQuantizedOutput() Option {
	return func(cfg *config) error {
		cfg.quantizedOutput = true
		return nil
	}
}

// WithSoftmax converts logits to probabilities before ranking.
func WithSoftmax() Option {
	return func(cfg *config) error {
		cfg.softmax = true
		return nil
	}
}

// Prediction is one ranked class.
type Prediction struct {
	Class int
	Score float32
}

// Classifier wraps one RKNN session. Classify calls are serialized.
type Classifier struct {
	session *rknn.Session
	input   rknn.TensorAttr
	output  rknn.TensorAttr
	cfg     config
	runMu   sync.Mutex
}

// New loads modelPath and validates that it has one input and the selected output.
//
// The RKNN runtime must already be initialized (rknn.InitializeEnvironment or
// rknn.InitializeEnvironmentWithBootstrap).
func New(modelPath string, opts ...Option) (_ *Classifier, err error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model path %q is not usable: %w", modelPath, err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if !rknn.IsInitialized() {
		return nil, fmt.Errorf("RKNN runtime not initialized: call rknn.SetSharedLibraryPath and rknn.InitializeEnvironment first")
	}

	session, err := rknn.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, rkutil.DestroyAll(session))
		}
	}()

	info, err := session.ModelInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to query model: %w", err)
	}
	if err := validateModel(info, cfg); err != nil {
		return nil, err
	}

	if cfg.coreMask != rknn.CoreMaskAuto {
		if err := session.SetCoreMask(cfg.coreMask); err != nil {
			return nil, fmt.Errorf("failed to set core mask: %w", err)
		}
	}

	return &Classifier{
		session: session,
		input:   info.InputAttrs[0],
		output:  info.OutputAttrs[cfg.outputIndex],
		cfg:     cfg,
	}, nil
}

func validateModel(info rknn.ModelInfo, cfg config) error {
	if info.IONum.NInput != 1 || len(info.InputAttrs) != 1 {
		return fmt.Errorf("classifier expects exactly one model input, got %d", info.IONum.NInput)
	}
	if cfg.outputIndex >= info.IONum.NOutput || int(cfg.outputIndex) >= len(info.OutputAttrs) {
		return fmt.Errorf("output index %d out of range (model has %d outputs)", cfg.outputIndex, info.IONum.NOutput)
	}
	if info.InputAttrs[0].NElems == 0 {
		return fmt.Errorf("model input %q reports zero elements", info.InputAttrs[0].Name)
	}
	if cfg.quantizedOutput && info.OutputAttrs[cfg.outputIndex].Type != rknn.TensorTypeInt8 {
		return fmt.Errorf("quantized output requires an INT8 output, model output %q is %s",
			info.OutputAttrs[cfg.outputIndex].Name, info.OutputAttrs[cfg.outputIndex].Type)
	}
	return nil
}

// InputSize is the number of bytes Classify expects: one uint8 per input element, NHWC.
func (c *Classifier) InputSize() int {
	return int(c.input.NElems)
}

// Classify runs the model on an NHWC uint8 image and returns the top-k classes.
func (c *Classifier) Classify(image []byte) ([]Prediction, error) {
	if c == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.session.IsValid() {
		return nil, fmt.Errorf("classifier has been closed")
	}
	if len(image) != c.InputSize() {
		return nil, fmt.Errorf("image size mismatch: got %d bytes, want %d", len(image), c.InputSize())
	}

	if err := c.session.SetInputBytes(0, image, false, rknn.TensorTypeUint8, rknn.TensorFormatNHWC); err != nil {
		return nil, fmt.Errorf("failed to set input: %w", err)
	}
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("classification inference failed: %w", err)
	}

	scores, err := c.scores()
	if err != nil {
		return nil, err
	}
	if c.cfg.softmax {
		scores = softmax(scores)
	}
	return topK(scores, c.cfg.topK), nil
}

func (c *Classifier) scores() ([]float32, error) {
	if !c.cfg.quantizedOutput {
		scores, err := rknn.CopyOutput[float32](c.session, c.cfg.outputIndex, true)
		if err != nil {
			return nil, fmt.Errorf("failed to read scores: %w", err)
		}
		return scores, nil
	}

	raw, err := rknn.CopyOutput[int8](c.session, c.cfg.outputIndex, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read quantized scores: %w", err)
	}
	return dequantizeAffine(raw, c.output.ZP, c.output.Scale), nil
}

// Close destroys the underlying session.
func (c *Classifier) Close() error {
	if c == nil {
		return nil
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return rkutil.DestroyAll(c.session)
}

// dequantizeAffine maps asymmetric INT8 values back to real values: (q - zp) * scale.
func dequantizeAffine(src []int8, zp int32, scale float32) []float32 {
	dst := make([]float32, len(src))
	for i, q := range src {
		dst[i] = float32(int32(q)-zp) * scale
	}
	return dst
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return []float32{}
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	sum := 0.0
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// topK ranks scores descending; ties keep the lower class index first.
func topK(scores []float32, k int) []Prediction {
	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Class: i, Score: s}
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})
	if k < len(preds) {
		preds = preds[:k]
	}
	return preds
}
