// Package app wires frame capture, face detection and the heart-rate
// pipeline into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/ayusman/pulsecam/internal/plugin"
	"github.com/ayusman/pulsecam/internal/signal"
	"gocv.io/x/gocv"
)

// Runtime defaults.
const (
	// DefaultQueueSize is the number of frames waiting for the processing goroutine.
	DefaultQueueSize = 2
	// DefaultMotionThreshold is the percentage of changed forehead pixels reported as movement.
	DefaultMotionThreshold = 5.0
)

// overlayColor is used for the face and forehead outlines in the preview.
var overlayColor = color.RGBA{R: 255, G: 0, B: 255, A: 0}

// Recorder persists sessions and their estimates.
type Recorder interface {
	BeginSession(windowSize, bufferSize int, sampleRateHz float64) (string, error)
	RecordEstimate(sessionID string, est signal.Estimate) error
	EndSession(sessionID string) error
}

// Publisher forwards estimates to external consumers.
type Publisher interface {
	Publish(sessionID string, est signal.Estimate) error
}

// Config holds configuration options for the application.
type Config struct {
	Pipeline      PipelineConfig
	CameraID      int
	PluginDir     string
	PluginTimeout time.Duration
	MotionThresh  float64
	QueueSize     int
	SinkSize      int
	Recorder      Recorder
	Publisher     Publisher
}

// App runs the capture and processing goroutines around a Pipeline.
type App struct {
	config     Config
	camera     capture.Camera
	detector   detector.Detector
	motion     *capture.MotionMeter
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor
	hooks      *plugin.Hooks

	enabled   atomic.Bool
	mu        sync.RWMutex
	stopCh    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	queue     *FrameQueue
	sink      *EstimateSink
	sessionID string

	snapMu     sync.RWMutex
	snapshot   Snapshot
	preview    []byte
	onEstimate []func(signal.Estimate)
}

// New creates an App. The camera defaults to device config.CameraID and
// the detector to a Haar cascade when one can be found.
func New(config Config) (*App, error) {
	if err := config.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if config.MotionThresh <= 0 {
		config.MotionThresh = DefaultMotionThreshold
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.SinkSize <= 0 {
		config.SinkSize = DefaultSinkSize
	}

	mgr := plugin.NewManager(config.PluginDir)
	exec := plugin.NewExecutor(config.PluginTimeout)

	a := &App{
		config:     config,
		camera:     capture.NewCamera(config.CameraID),
		motion:     capture.NewMotionMeter(config.MotionThresh),
		pluginMgr:  mgr,
		pluginExec: exec,
		hooks:      plugin.NewHooks(mgr, exec),
	}
	a.enabled.Store(true)
	a.snapshot = Snapshot{Enabled: true, Config: config.Pipeline}

	if d, err := detector.NewCascadeDetector("", detector.DefaultConfig()); err == nil {
		a.detector = d
		log.Printf("Using cascade face detection (%s)", d.Path())
	} else {
		log.Printf("Cascade detector not available (%v), set one with SetDetector", err)
	}

	return a, nil
}

// SetCamera replaces the frame source. It has no effect while running.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh == nil {
		a.camera = c
	}
}

// SetDetector sets the face detector implementation to use.
// It has no effect while running.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCh == nil {
		a.detector = d
	}
}

// SetEnabled pauses or resumes frame capture.
func (a *App) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)

	a.snapMu.Lock()
	a.snapshot.Enabled = enabled
	a.snapMu.Unlock()
}

// IsEnabled returns whether capture is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// IsRunning reports whether the pipeline goroutines are active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// OnEstimate registers a callback for every new estimate. Callbacks run on
// the processing goroutine and must not block.
func (a *App) OnEstimate(fn func(signal.Estimate)) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	a.onEstimate = append(a.onEstimate, fn)
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	if err := a.pluginMgr.Discover(); err != nil {
		return err
	}
	log.Printf("Loaded %d plugins", len(a.pluginMgr.List()))
	return nil
}

// Start opens the camera, begins a session and starts the pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	if a.detector == nil {
		return errors.New("no face detector configured")
	}

	pipeline, err := NewPipeline(a.config.Pipeline, a.detector)
	if err != nil {
		return err
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(int(math.Max(1, math.Ceil(a.config.Pipeline.SampleRateHz))))

	a.sessionID = ""
	if a.config.Recorder != nil {
		cfg := a.config.Pipeline
		id, err := a.config.Recorder.BeginSession(cfg.WindowSize, cfg.BufferSize, cfg.SampleRateHz)
		if err != nil {
			log.Printf("Error starting session: %v", err)
		} else {
			a.sessionID = id
		}
	}

	a.queue = NewFrameQueue(a.config.QueueSize)
	a.sink = NewEstimateSink(a.config.SinkSize, a.config.Recorder, a.config.Publisher)
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	a.motion.Reset()

	a.snapMu.Lock()
	a.snapshot = Snapshot{
		Enabled:   a.enabled.Load(),
		Running:   true,
		SessionID: a.sessionID,
		Config:    a.config.Pipeline,
		UpdatedAt: time.Now(),
	}
	a.preview = nil
	a.snapMu.Unlock()

	a.fireHook(plugin.Request{Event: plugin.EventSessionStart, SessionID: a.sessionID})

	a.wg.Add(2)
	go a.runCapture(a.stopCh, a.done, a.queue)
	go a.runProcessing(pipeline, a.stopCh, a.queue, a.sink)

	log.Println("Detection pipeline started")
	return nil
}

// Done is closed when the frame source is exhausted or the app stops.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Stop halts the pipeline, closes the camera and ends the session.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh == nil {
		return
	}

	close(a.stopCh)
	a.wg.Wait()
	a.stopCh = nil
	a.queue.Close()
	// pending estimates are recorded before the session ends
	a.sink.Close()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	a.motion.Reset()

	if a.config.Recorder != nil && a.sessionID != "" {
		if err := a.config.Recorder.EndSession(a.sessionID); err != nil {
			log.Printf("Error ending session: %v", err)
		}
	}
	// session_end must not be skipped behind a running bpm hook
	a.hooks.Wait()
	a.fireHook(plugin.Request{Event: plugin.EventSessionEnd, SessionID: a.sessionID})
	a.hooks.Wait()

	a.snapMu.Lock()
	a.snapshot.Running = false
	a.snapshot.UpdatedAt = time.Now()
	a.snapMu.Unlock()

	log.Println("Detection pipeline stopped")
}

// Close stops the app and releases the detector.
func (a *App) Close() error {
	a.Stop()
	a.motion.Close()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		return a.detector.Close()
	}
	return nil
}

// Snapshot returns a copy of the latest runtime state.
func (a *App) Snapshot() Snapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshot.Clone()
}

// Preview returns the latest JPEG frame with face and forehead overlays, or
// nil before the first tick.
func (a *App) Preview() []byte {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	if a.preview == nil {
		return nil
	}
	out := make([]byte, len(a.preview))
	copy(out, a.preview)
	return out
}

// SessionID returns the active session, empty when not recording.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Camera returns the frame source.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// runCapture reads a frame every sample interval and offers it to the queue.
func (a *App) runCapture(stopCh <-chan struct{}, done chan<- struct{}, queue *FrameQueue) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.Pipeline.SampleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			close(done)
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if errors.Is(err, capture.ErrEndOfStream) {
				log.Println("Frame source exhausted")
				close(done)
				<-stopCh
				return
			}
			if err != nil {
				log.Printf("Error reading frame: %v", err)
				continue
			}

			if err := queue.Offer(frame); errors.Is(err, ErrQueueFull) {
				log.Println("Processing behind, frame dropped")
			}
		}
	}
}

// runProcessing owns the pipeline: it ticks queued frames and estimates the
// spectrum on its own timer, so the two never overlap. Recording and
// publishing are handed to sink.
func (a *App) runProcessing(p *Pipeline, stopCh <-chan struct{}, queue *FrameQueue, sink *EstimateSink) {
	defer a.wg.Done()

	ticker := time.NewTicker(p.Config().SpectrumInterval)
	defer ticker.Stop()

	var counters Counters
	var motion float64
	var moving bool
	estimatedAt := -1

	for {
		select {
		case <-stopCh:
			return

		case frame, ok := <-queue.Frames():
			if !ok {
				return
			}

			result, err := p.Tick(frame)
			if err != nil {
				counters.Errors++
				log.Printf("Error processing frame: %v", err)
				frame.Close()
				continue
			}

			if result.Forehead != nil {
				motion, _ = a.motion.Measure(frame, result.Forehead.Image())
				moving = a.motion.Moving(motion)
			} else {
				a.motion.Reset()
				motion, moving = 0, false
			}

			preview := renderPreview(frame, result)
			frame.Close()

			counters.Ticks = p.Ticks()
			counters.Gaps = p.Gaps()
			counters.Dropped = queue.Dropped()

			a.snapMu.Lock()
			a.snapshot.State = result.State
			a.snapshot.Face = result.Face
			a.snapshot.Forehead = result.Forehead
			a.snapshot.Detections = result.Detections
			a.snapshot.Samples = p.Samples()
			a.snapshot.Motion = motion
			a.snapshot.Moving = moving
			a.snapshot.Counters = counters
			a.snapshot.UpdatedAt = time.Now()
			if preview != nil {
				a.preview = preview
			}
			a.snapMu.Unlock()

		case <-ticker.C:
			if p.Ticks() == estimatedAt {
				continue
			}
			est, ok := p.Estimate()
			if !ok {
				continue
			}
			estimatedAt = p.Ticks()
			counters.Estimates = p.Estimates()
			counters.Unsent = sink.Dropped()

			spectrum, _, _ := p.Latest()

			a.snapMu.Lock()
			a.snapshot.Spectrum = spectrum.Clone()
			a.snapshot.Estimate = &est
			a.snapshot.Counters = counters
			a.snapshot.UpdatedAt = time.Now()
			callbacks := append([]func(signal.Estimate){}, a.onEstimate...)
			a.snapMu.Unlock()

			a.handleEstimate(sink, est, callbacks)
		}
	}
}

// handleEstimate queues a new estimate for recording and publishing and
// announces it to plugins and callbacks.
func (a *App) handleEstimate(sink *EstimateSink, est signal.Estimate, callbacks []func(signal.Estimate)) {
	sessionID := a.sessionID

	if a.config.Recorder != nil || a.config.Publisher != nil {
		if err := sink.Offer(sessionID, est); errors.Is(err, ErrSinkFull) {
			log.Println("Estimate sink behind, estimate dropped")
		}
	}

	a.fireHook(plugin.Request{
		Event:     plugin.EventBPM,
		SessionID: sessionID,
		BPM:       est.BPM,
		Channel:   est.Channel.String(),
		Channels: map[string]float64{
			signal.Red.String():   est.Red.BPM,
			signal.Green.String(): est.Green.BPM,
			signal.Blue.String():  est.Blue.BPM,
		},
	})

	for _, fn := range callbacks {
		fn(est)
	}
}

func (a *App) fireHook(req plugin.Request) {
	a.hooks.Fire(context.Background(), req)
}

// renderPreview draws the smoothed face and forehead on a copy of frame and
// encodes it as JPEG.
func renderPreview(frame *gocv.Mat, result TickResult) []byte {
	img := frame.Clone()
	defer img.Close()

	if result.Face != nil {
		gocv.Rectangle(&img, result.Face.Image(), overlayColor, 2)
	}
	if result.Forehead != nil {
		gocv.Rectangle(&img, result.Forehead.Image(), overlayColor, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		log.Printf("Error encoding preview: %v", err)
		return nil
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
