package main

import (
	"fmt"
	"time"

	"github.com/ayusman/pulsecam/internal/app"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/spf13/pflag"
)

// pipelineFlags are shared by serve and analyze.
type pipelineFlags struct {
	WindowSize       int
	BufferSize       int
	SampleRateHz     float64
	SpectrumInterval time.Duration
	MinBPM           float64
	MaxBPM           float64

	Cascade       string
	ServiceScript string
	ResizeFactor  float64
}

func (f *pipelineFlags) register(fs *pflag.FlagSet, defaultRate float64) {
	def := app.DefaultPipelineConfig()
	fs.IntVar(&f.WindowSize, "window", def.WindowSize, "Face detections averaged for the tracked face")
	fs.IntVar(&f.BufferSize, "buffer", def.BufferSize, "Color samples per spectrum")
	fs.Float64Var(&f.SampleRateHz, "sample-rate", defaultRate, "Color sampling rate in Hz")
	fs.DurationVar(&f.SpectrumInterval, "spectrum-interval", def.SpectrumInterval, "Time between spectrum estimates")
	fs.Float64Var(&f.MinBPM, "min-bpm", 0, "Lowest heart rate considered (0 for no bound)")
	fs.Float64Var(&f.MaxBPM, "max-bpm", 0, "Highest heart rate considered (0 for no bound)")
	fs.StringVar(&f.Cascade, "cascade", "", "Haar cascade XML (default: search common locations)")
	fs.StringVar(&f.ServiceScript, "detector-service", "", "Use an external face detection script instead of the cascade (\"auto\" to search)")
	fs.Float64Var(&f.ResizeFactor, "resize-factor", detector.DefaultConfig().ResizeFactor, "Frame downscale factor before detection")
}

func (f *pipelineFlags) pipeline() app.PipelineConfig {
	return app.PipelineConfig{
		WindowSize:       f.WindowSize,
		BufferSize:       f.BufferSize,
		SampleRateHz:     f.SampleRateHz,
		SpectrumInterval: f.SpectrumInterval,
		MinBPM:           f.MinBPM,
		MaxBPM:           f.MaxBPM,
	}
}

// customDetector reports whether the flags ask for something other than the
// default cascade.
func (f *pipelineFlags) customDetector() bool {
	return f.Cascade != "" || f.ServiceScript != "" || f.ResizeFactor != detector.DefaultConfig().ResizeFactor
}

func (f *pipelineFlags) detector() (detector.Detector, error) {
	if f.ServiceScript != "" {
		script := f.ServiceScript
		if script == "auto" {
			script = ""
		}
		return detector.NewPythonServiceDetector(script)
	}

	cfg := detector.DefaultConfig()
	cfg.ResizeFactor = f.ResizeFactor
	d, err := detector.NewCascadeDetector(f.Cascade, cfg)
	if err != nil {
		return nil, fmt.Errorf("load face detector: %w", err)
	}
	return d, nil
}
