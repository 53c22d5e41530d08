package app

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/internal/tracking"
	"gocv.io/x/gocv"
)

// DefaultSpectrumInterval is how often the spectrum is recomputed.
const DefaultSpectrumInterval = 100 * time.Millisecond

var (
	// ErrInvalidFrame is returned by Tick for nil, empty or zero-area frames.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrInvalidConfig is returned for pipeline settings that cannot be used.
	ErrInvalidConfig = errors.New("invalid pipeline config")
)

// PipelineConfig holds the tunable constants of the heart-rate pipeline.
type PipelineConfig struct {
	// WindowSize is the number of detections averaged into the face rectangle.
	WindowSize int `json:"window_size"`
	// BufferSize is the number of color samples analysed per spectrum.
	BufferSize int `json:"buffer_size"`
	// SampleRateHz is the rate at which frames are ticked.
	SampleRateHz float64 `json:"sample_rate_hz"`
	// SpectrumInterval is the period of spectrum estimation.
	SpectrumInterval time.Duration `json:"spectrum_interval"`
	// MinBPM and MaxBPM bound the peak search; zero disables a bound.
	MinBPM float64 `json:"min_bpm,omitempty"`
	MaxBPM float64 `json:"max_bpm,omitempty"`
}

// DefaultPipelineConfig returns the stock pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		WindowSize:       tracking.DefaultWindowSize,
		BufferSize:       signal.DefaultCapacity,
		SampleRateHz:     signal.DefaultSampleRateHz,
		SpectrumInterval: DefaultSpectrumInterval,
	}
}

// Validate rejects non-positive sizes and rates and inverted BPM bands.
func (c PipelineConfig) Validate() error {
	switch {
	case c.WindowSize <= 0:
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer size must be positive, got %d", ErrInvalidConfig, c.BufferSize)
	case c.SampleRateHz <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidConfig, c.SampleRateHz)
	case c.SpectrumInterval <= 0:
		return fmt.Errorf("%w: spectrum interval must be positive, got %v", ErrInvalidConfig, c.SpectrumInterval)
	case c.MinBPM < 0 || c.MaxBPM < 0:
		return fmt.Errorf("%w: bpm band must not be negative", ErrInvalidConfig)
	case c.MaxBPM > 0 && c.MaxBPM < c.MinBPM:
		return fmt.Errorf("%w: max bpm %v is below min bpm %v", ErrInvalidConfig, c.MaxBPM, c.MinBPM)
	}
	return nil
}

// SampleInterval is the time between ticks.
func (c PipelineConfig) SampleInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.SampleRateHz)
}

// State is the tracking state of a pipeline.
type State int

const (
	// AwaitingFace means no detection is present in the face window.
	AwaitingFace State = iota
	// Tracking means the face window yields a smoothed face.
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "awaiting_face"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TickResult describes what a single tick observed.
type TickResult struct {
	// Detections is the number of faces the detector returned.
	Detections int
	// Face is the smoothed face, nil while awaiting a face.
	Face *tracking.Rect
	// Forehead is the sampled region clipped to the frame, nil if none.
	Forehead *tracking.Rect
	// Sample is the color pushed to the buffer, nil for a gap.
	Sample *signal.Color
	// State is the state after the tick.
	State State
	// Changed reports whether the tick changed State.
	Changed bool
}

// Pipeline turns frames into color samples and samples into heart-rate
// estimates. It is not safe for concurrent use; one goroutine owns it.
type Pipeline struct {
	config    PipelineConfig
	detector  detector.Detector
	window    *tracking.FaceWindow
	buffer    *signal.RingBuffer
	estimator *signal.Estimator

	state    State
	face     *tracking.Rect
	forehead *tracking.Rect

	spectrum    *signal.Spectrum
	estimate    signal.Estimate
	hasEstimate bool

	ticks     int
	gaps      int
	estimates int
}

// NewPipeline creates a pipeline using d for face detection.
func NewPipeline(config PipelineConfig, d detector.Detector) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.New("detector is required")
	}

	return &Pipeline{
		config:   config,
		detector: d,
		window:   tracking.NewFaceWindow(config.WindowSize),
		buffer:   signal.NewRingBuffer(config.BufferSize),
		estimator: &signal.Estimator{
			SampleRateHz: config.SampleRateHz,
			MinBPM:       config.MinBPM,
			MaxBPM:       config.MaxBPM,
		},
	}, nil
}

// Config returns the pipeline settings.
func (p *Pipeline) Config() PipelineConfig {
	return p.config
}

// Tick processes one frame. Invalid frames and detector failures return an
// error and leave the pipeline untouched; otherwise exactly one detection is
// pushed to the face window and one sample (or gap) to the color buffer.
func (p *Pipeline) Tick(frame *gocv.Mat) (TickResult, error) {
	if frame == nil || frame.Empty() || frame.Cols() == 0 || frame.Rows() == 0 {
		return TickResult{}, ErrInvalidFrame
	}

	faces, err := p.detector.Detect(frame)
	if err != nil {
		return TickResult{}, fmt.Errorf("detect faces: %w", err)
	}

	var detection *tracking.Rect
	if len(faces) > 0 {
		r := tracking.FromImage(faces[0])
		detection = &r
	}
	p.window.Push(detection)

	result := TickResult{Detections: len(faces)}

	p.face, p.forehead = nil, nil
	smoothed, ok := p.window.Smoothed()
	if ok {
		p.face = &smoothed
		roi := tracking.Forehead(smoothed).Image().Intersect(capture.Bounds(frame))
		if !roi.Empty() {
			forehead := tracking.FromImage(roi)
			p.forehead = &forehead

			c, err := capture.MeanColor(frame, roi)
			if err != nil {
				log.Printf("Error sampling forehead: %v", err)
			} else {
				result.Sample = &c
			}
		}
	}

	p.buffer.Push(result.Sample)
	p.ticks++
	if result.Sample == nil {
		p.gaps++
	}

	next := AwaitingFace
	if ok {
		next = Tracking
	}
	if next != p.state {
		result.Changed = true
		if next == Tracking {
			log.Println("Switched to tracking")
		} else {
			log.Println("Face lost, awaiting face")
		}
		p.state = next
	}

	result.Face = cloneRect(p.face)
	result.Forehead = cloneRect(p.forehead)
	result.State = p.state

	return result, nil
}

// Estimate recomputes the spectrum. When the color buffer is complete the
// new spectrum and estimate replace the retained ones; otherwise the last
// good result is kept and false is returned.
func (p *Pipeline) Estimate() (signal.Estimate, bool) {
	spectrum, ok := p.estimator.EstimateAll(p.buffer)
	if !ok {
		return signal.Estimate{}, false
	}

	est, ok := spectrum.Estimate()
	if !ok {
		return signal.Estimate{}, false
	}

	p.spectrum = spectrum
	p.estimate = est
	p.hasEstimate = true
	p.estimates++

	return est, true
}

// Latest returns the retained spectrum and estimate.
func (p *Pipeline) Latest() (*signal.Spectrum, signal.Estimate, bool) {
	if !p.hasEstimate {
		return nil, signal.Estimate{}, false
	}
	return p.spectrum, p.estimate, true
}

// ClearEstimate drops the retained spectrum and estimate.
func (p *Pipeline) ClearEstimate() {
	p.spectrum = nil
	p.estimate = signal.Estimate{}
	p.hasEstimate = false
}

// State returns the current tracking state.
func (p *Pipeline) State() State {
	return p.state
}

// Face returns the smoothed face and forehead from the last tick.
func (p *Pipeline) Face() (face, forehead *tracking.Rect) {
	return cloneRect(p.face), cloneRect(p.forehead)
}

// Samples returns the color history, oldest first, gaps as nil.
func (p *Pipeline) Samples() []*signal.Color {
	return p.buffer.Samples()
}

// Ticks returns the number of successful ticks.
func (p *Pipeline) Ticks() int {
	return p.ticks
}

// Gaps returns the number of ticks that pushed no sample.
func (p *Pipeline) Gaps() int {
	return p.gaps
}

// Estimates returns the number of successful estimations.
func (p *Pipeline) Estimates() int {
	return p.estimates
}

// Reset clears all history, counters and the retained estimate.
func (p *Pipeline) Reset() {
	p.window.Reset()
	p.buffer.Reset()
	p.ClearEstimate()
	p.state = AwaitingFace
	p.face, p.forehead = nil, nil
	p.ticks, p.gaps, p.estimates = 0, 0, 0
}

func cloneRect(r *tracking.Rect) *tracking.Rect {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
