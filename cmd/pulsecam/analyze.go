package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ayusman/pulsecam/internal/app"
	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	pipelineFlags

	InputPath string
	MaxFrames int
	Record    bool
	Quiet     bool
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Estimate heart rate from a recorded video",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context(), analyzeOpts)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	analyzeOpts.register(f, signal.DefaultSampleRateHz)
	f.StringVarP(&analyzeOpts.InputPath, "input", "i", "", "Path to the video file")
	f.IntVar(&analyzeOpts.MaxFrames, "max-frames", 0, "Stop after this many frames (0 for all)")
	f.BoolVar(&analyzeOpts.Record, "record", false, "Record the estimates as a session")
	f.BoolVarP(&analyzeOpts.Quiet, "quiet", "q", false, "Only print the summary")
	analyzeCmd.MarkFlagRequired("input")
}

func runAnalyze(ctx context.Context, opts analyzeOptions) error {
	if _, err := os.Stat(opts.InputPath); err != nil {
		return fmt.Errorf("input video: %w", err)
	}

	d, err := opts.detector()
	if err != nil {
		return err
	}
	defer d.Close()

	src := capture.NewVideoFile(opts.InputPath)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	cfg := opts.pipeline()
	sourceFPS := src.SourceFPS()

	var sessionID string
	if opts.Record {
		rate := cfg.SampleRateHz
		if sourceFPS > 0 {
			rate = sourceFPS / float64(app.FrameStep(sourceFPS, cfg.SampleRateHz))
		}
		sessionID, err = DB.BeginSession(cfg.WindowSize, cfg.BufferSize, rate)
		if err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		defer func() {
			if err := DB.EndSession(sessionID); err != nil {
				log.Printf("Error ending session: %v", err)
			}
		}()
	}

	total := src.FrameCount()
	if opts.MaxFrames > 0 && (total <= 0 || opts.MaxFrames < total) {
		total = opts.MaxFrames
	}
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	result, err := app.Analyze(ctx, src, d, app.AnalyzeOptions{
		Pipeline:  cfg,
		SourceFPS: sourceFPS,
		MaxFrames: opts.MaxFrames,
		OnFrame: func(int) {
			bar.Add(1)
		},
		OnEstimate: func(at time.Duration, est signal.Estimate) {
			if !opts.Quiet {
				bar.Clear()
				fmt.Printf("%10s  %6.1f BPM  %s\n", at.Round(time.Millisecond), est.BPM, est.Channel)
			}
			if sessionID != "" {
				if err := DB.RecordEstimate(sessionID, est); err != nil {
					log.Printf("Error recording estimate: %v", err)
				}
			}
		},
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	printSummary(result, sessionID)
	return nil
}

func printSummary(r app.AnalyzeResult, sessionID string) {
	fmt.Printf("Frames: %d  Ticks: %d (%.2f Hz)  Gaps: %d  Errors: %d\n", r.Frames, r.Ticks, r.RateHz, r.Gaps, r.Errors)
	if r.Estimates == 0 {
		fmt.Println("No estimate: the recording is shorter than one buffer or no face was found.")
	} else {
		fmt.Printf("Estimates: %d  Mean: %.1f BPM  Last: %.1f BPM\n", r.Estimates, r.MeanBPM, r.Last.BPM)
	}
	if sessionID != "" {
		fmt.Printf("Session: %s\n", sessionID)
	}
}
