// Package silero provides a vad.Engine backed by the Silero VAD model, a
// small recurrent network distributed as an ONNX artifact and executed
// through ONNX Runtime.
//
// The model consumes 512-sample frames at 16 kHz (256 at 8 kHz), prefixed
// with the last 64 samples of the previous frame as look-back context, and
// carries a [2,1,128] recurrent state tensor between calls. Each session owns
// its tensors exclusively, so concurrent sessions never share state — though
// in practice the session-exclusivity lock means only one is ever active.
//
// The ONNX Runtime environment is initialised once per process on first
// engine construction and reused thereafter.
package silero

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voicewire/voicewire/pkg/provider/vad"
)

const (
	// contextSamples is the number of trailing samples from the previous
	// frame the model expects prepended to each input window.
	contextSamples = 64

	// frameSamples16k is the model's native window at 16 kHz.
	frameSamples16k = 512

	// frameSamples8k is the model's native window at 8 kHz.
	frameSamples8k = 256

	// stateLen is the flattened length of the recurrent state tensor [2,1,128].
	stateLen = 2 * 1 * 128
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initialises the process-wide ONNX Runtime environment exactly
// once. libPath optionally points at the onnxruntime shared library; when
// empty the runtime's default resolution applies.
func initRuntime(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// Option configures an Engine.
type Option func(*Engine)

// WithRuntimeLibrary sets the path to the onnxruntime shared library. Only
// the first engine constructed in a process can influence this; later values
// are ignored.
func WithRuntimeLibrary(path string) Option {
	return func(e *Engine) {
		e.runtimeLib = path
	}
}

// Engine implements vad.Engine using a Silero VAD ONNX artifact. Safe for
// concurrent NewSession calls.
type Engine struct {
	modelPath  string
	runtimeLib string
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an Engine for the Silero model at modelPath. The artifact must
// exist and the ONNX Runtime environment must initialise; either failure is
// reported as (wrapped) [vad.ErrInit] and should abort engine startup.
func New(modelPath string, opts ...Option) (*Engine, error) {
	e := &Engine{modelPath: modelPath}
	for _, o := range opts {
		o(e)
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model artifact %q: %v", vad.ErrInit, modelPath, err)
	}
	if err := initRuntime(e.runtimeLib); err != nil {
		return nil, fmt.Errorf("%w: onnxruntime: %v", vad.ErrInit, err)
	}
	return e, nil
}

// NewSession creates a session with freshly zeroed recurrent state.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	native, ok := nativeFrameSamples(cfg.SampleRate)
	if !ok {
		return nil, fmt.Errorf("silero: unsupported sample rate %d (want 8000 or 16000)", cfg.SampleRate)
	}
	if cfg.FrameSamples == 0 {
		cfg.FrameSamples = native
	}
	if cfg.FrameSamples != native {
		return nil, fmt.Errorf("silero: frame size %d unsupported at %d Hz (model requires %d)", cfg.FrameSamples, cfg.SampleRate, native)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = vad.DefaultSpeechThreshold
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("silero: speech threshold %.2f out of range [0, 1]", cfg.SpeechThreshold)
	}

	s := &session{
		frameSamples: cfg.FrameSamples,
		threshold:    cfg.SpeechThreshold,
	}

	var err error
	s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(contextSamples+cfg.FrameSamples)))
	if err != nil {
		return nil, fmt.Errorf("silero: input tensor: %w", err)
	}
	s.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("silero: state tensor: %w", err)
	}
	s.sr, err = ort.NewTensor(ort.NewShape(1), []int64{int64(cfg.SampleRate)})
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("silero: sample-rate tensor: %w", err)
	}
	s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("silero: output tensor: %w", err)
	}
	s.stateOut, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("silero: output state tensor: %w", err)
	}

	s.sess, err = ort.NewAdvancedSession(e.modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{s.input, s.state, s.sr},
		[]ort.Value{s.output, s.stateOut},
		nil,
	)
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("%w: session for %q: %v", vad.ErrInit, e.modelPath, err)
	}

	return s, nil
}

// nativeFrameSamples returns the model's required window length for a sample
// rate, or false when the rate is unsupported.
func nativeFrameSamples(rate int) (int, bool) {
	switch rate {
	case 16000:
		return frameSamples16k, true
	case 8000:
		return frameSamples8k, true
	}
	return 0, false
}

// session is a live Silero inference session. Not safe for concurrent use.
type session struct {
	sess     *ort.AdvancedSession
	input    *ort.Tensor[float32]
	state    *ort.Tensor[float32]
	sr       *ort.Tensor[int64]
	output   *ort.Tensor[float32]
	stateOut *ort.Tensor[float32]

	frameSamples int
	threshold    float64
	closed       bool
}

var _ vad.Session = (*session)(nil)

// Classify runs one frame of 16-bit mono PCM through the model.
func (s *session) Classify(frame []byte) (vad.Result, error) {
	if s.closed {
		return vad.Result{}, fmt.Errorf("silero: session closed")
	}
	if len(frame) != s.frameSamples*2 {
		return vad.Result{}, fmt.Errorf("silero: frame is %d bytes, want %d", len(frame), s.frameSamples*2)
	}

	// Input layout: [context | frame], normalised to [-1, 1]. The context
	// region already holds the previous frame's tail (zeros after Reset).
	in := s.input.GetData()
	for i := range s.frameSamples {
		sample := int16(frame[i*2]) | int16(frame[i*2+1])<<8
		in[contextSamples+i] = float32(sample) / 32768.0
	}

	if err := s.sess.Run(); err != nil {
		return vad.Result{}, fmt.Errorf("silero: inference: %w", err)
	}

	prob := float64(s.output.GetData()[0])

	// Carry recurrent state and trailing context into the next call.
	copy(s.state.GetData(), s.stateOut.GetData())
	copy(in[:contextSamples], in[len(in)-contextSamples:])

	return vad.Result{Probability: prob, Speech: prob >= s.threshold}, nil
}

// Reset zeroes the recurrent state and trailing context so a new recording
// starts from the model's initial conditions.
func (s *session) Reset() {
	if s.closed {
		return
	}
	clear(s.state.GetData())
	clear(s.input.GetData()[:contextSamples])
}

// Close destroys the inference session and its tensors. Safe to call twice.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sess != nil {
		s.sess.Destroy()
	}
	s.destroyTensors()
	return nil
}

func (s *session) destroyTensors() {
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.state != nil {
		_ = s.state.Destroy()
	}
	if s.sr != nil {
		_ = s.sr.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
	if s.stateOut != nil {
		_ = s.stateOut.Destroy()
	}
}
