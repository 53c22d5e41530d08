package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/ayusman/pulsecam/internal/signal"
)

// AnalyzeOptions configures an offline run over a finite frame source.
type AnalyzeOptions struct {
	Pipeline PipelineConfig
	// SourceFPS is the frame rate of the recording. Frames are ticked at
	// Pipeline.SampleRateHz by skipping frames; zero ticks every frame.
	SourceFPS float64
	// MaxFrames stops the run early when positive.
	MaxFrames int
	// OnFrame is called after every frame read.
	OnFrame func(frame int)
	// OnEstimate is called for every new estimate with the stream position.
	OnEstimate func(at time.Duration, est signal.Estimate)
}

// AnalyzeResult summarises an offline run.
type AnalyzeResult struct {
	Frames    int              `json:"frames"`
	Ticks     int              `json:"ticks"`
	Gaps      int              `json:"gaps"`
	Errors    int              `json:"errors"`
	RateHz    float64          `json:"rate_hz"`
	Estimates int              `json:"estimates"`
	MeanBPM   float64          `json:"mean_bpm"`
	Last      *signal.Estimate `json:"last,omitempty"`
}

// FrameStep returns how many source frames make up one tick.
func FrameStep(sourceFPS, sampleRateHz float64) int {
	if sourceFPS <= 0 || sampleRateHz <= 0 {
		return 1
	}
	return int(math.Max(1, math.Round(sourceFPS/sampleRateHz)))
}

// Analyze drives a Pipeline over every frame of src until it is exhausted,
// estimating after each tick. The source must already be open.
func Analyze(ctx context.Context, src capture.Camera, d detector.Detector, opts AnalyzeOptions) (AnalyzeResult, error) {
	var result AnalyzeResult

	if err := opts.Pipeline.Validate(); err != nil {
		return result, err
	}

	// the frequency axis follows the rate frames are actually ticked at
	cfg := opts.Pipeline
	step := FrameStep(opts.SourceFPS, cfg.SampleRateHz)
	if opts.SourceFPS > 0 {
		cfg.SampleRateHz = opts.SourceFPS / float64(step)
	}

	p, err := NewPipeline(cfg, d)
	if err != nil {
		return result, err
	}
	frameDuration := time.Duration(0)
	if opts.SourceFPS > 0 {
		frameDuration = time.Duration(float64(time.Second) / opts.SourceFPS)
	}

	var bpmSum float64
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.MaxFrames > 0 && result.Frames >= opts.MaxFrames {
			break
		}

		frame, err := src.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read frame %d: %w", result.Frames, err)
		}

		index := result.Frames
		result.Frames++
		if opts.OnFrame != nil {
			opts.OnFrame(result.Frames)
		}

		if index%step != 0 {
			frame.Close()
			continue
		}

		_, err = p.Tick(frame)
		frame.Close()
		if err != nil {
			result.Errors++
			continue
		}

		est, ok := p.Estimate()
		if !ok {
			continue
		}
		bpmSum += est.BPM
		last := est
		result.Last = &last
		if opts.OnEstimate != nil {
			opts.OnEstimate(time.Duration(index)*frameDuration, est)
		}
	}

	result.RateHz = cfg.SampleRateHz
	result.Ticks = p.Ticks()
	result.Gaps = p.Gaps()
	result.Estimates = p.Estimates()
	if result.Estimates > 0 {
		result.MeanBPM = bpmSum / float64(result.Estimates)
	}

	return result, nil
}
