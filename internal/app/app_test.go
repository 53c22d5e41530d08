package app

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/testdata"
)

type fakeRecorder struct {
	mu        sync.Mutex
	began     int
	ended     []string
	estimates []signal.Estimate
	config    [3]float64
}

func (r *fakeRecorder) BeginSession(windowSize, bufferSize int, sampleRateHz float64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.began++
	r.config = [3]float64{float64(windowSize), float64(bufferSize), sampleRateHz}
	return "session-1", nil
}

func (r *fakeRecorder) RecordEstimate(sessionID string, est signal.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sessionID != "session-1" {
		return errors.New("unknown session")
	}
	r.estimates = append(r.estimates, est)
	return nil
}

func (r *fakeRecorder) EndSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, sessionID)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	sessions []string
}

func (p *fakePublisher) Publish(sessionID string, est signal.Estimate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, sessionID)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func fastConfig() PipelineConfig {
	return PipelineConfig{
		WindowSize:       3,
		BufferSize:       16,
		SampleRateHz:     200,
		SpectrumInterval: 5 * time.Millisecond,
	}
}

func newTestApp(t *testing.T, cfg Config) (*App, *detector.MockDetector) {
	t.Helper()

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	pulse := testdata.DefaultPulse()
	pulse.RateHz = cfg.Pipeline.SampleRateHz
	pulse.BPM = 1500

	d := detector.NewMockDetector()
	d.SetFaces(pulse.Face)

	a.SetCamera(capture.NewGeneratedCamera(pulse.Frame))
	a.SetDetector(d)
	return a, d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.WindowSize = 0
	if _, err := New(Config{Pipeline: cfg}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestApp_RunsPipeline(t *testing.T) {
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}

	a, d := newTestApp(t, Config{
		Pipeline:  fastConfig(),
		PluginDir: t.TempDir(),
		Recorder:  recorder,
		Publisher: publisher,
	})

	var mu sync.Mutex
	var callbacks int
	a.OnEstimate(func(signal.Estimate) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})

	if err := a.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !a.IsRunning() {
		t.Error("IsRunning() should be true after Start()")
	}
	if a.SessionID() != "session-1" {
		t.Errorf("SessionID() = %q", a.SessionID())
	}

	waitFor(t, "an estimate", func() bool {
		return a.Snapshot().Estimate != nil && publisher.count() > 0
	})

	snap := a.Snapshot()
	if snap.State != Tracking {
		t.Errorf("State = %v, want tracking", snap.State)
	}
	if snap.Face == nil || snap.Forehead == nil {
		t.Error("snapshot should carry the face and forehead")
	}
	if len(snap.Samples) != 16 {
		t.Errorf("len(Samples) = %d, want 16", len(snap.Samples))
	}
	if snap.Spectrum == nil || len(snap.Spectrum.BPM) != 9 {
		t.Errorf("Spectrum = %+v, want 9 bins", snap.Spectrum)
	}
	if snap.SessionID != "session-1" || !snap.Running || !snap.Enabled {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Counters.Ticks < 16 || snap.Counters.Estimates < 1 {
		t.Errorf("Counters = %+v", snap.Counters)
	}

	// snapshots are copies
	snap.Samples[0] = nil
	snap.Face.X = -1
	if again := a.Snapshot(); again.Samples[0] == nil || again.Face.X == -1 {
		t.Error("Snapshot() must return a deep copy")
	}

	preview := a.Preview()
	if !bytes.HasPrefix(preview, []byte{0xFF, 0xD8}) {
		t.Error("Preview() should be a JPEG")
	}

	a.Stop()

	if a.IsRunning() {
		t.Error("IsRunning() should be false after Stop()")
	}
	if a.Snapshot().Running {
		t.Error("snapshot should report stopped")
	}

	recorder.mu.Lock()
	if recorder.began != 1 || len(recorder.ended) != 1 || recorder.ended[0] != "session-1" {
		t.Errorf("recorder began=%d ended=%v", recorder.began, recorder.ended)
	}
	if len(recorder.estimates) == 0 {
		t.Error("expected recorded estimates")
	}
	if recorder.config != [3]float64{3, 16, 200} {
		t.Errorf("session config = %v", recorder.config)
	}
	recorder.mu.Unlock()

	mu.Lock()
	if callbacks == 0 {
		t.Error("OnEstimate callback not invoked")
	}
	mu.Unlock()

	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !d.Closed() {
		t.Error("Close() should close the detector")
	}
}

func TestApp_Disabled(t *testing.T) {
	a, d := newTestApp(t, Config{Pipeline: fastConfig()})
	a.SetEnabled(false)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if d.Calls() != 0 {
		t.Errorf("detector called %d times while disabled", d.Calls())
	}
	if a.Snapshot().Enabled {
		t.Error("snapshot should report disabled")
	}

	a.SetEnabled(true)
	waitFor(t, "a tick", func() bool { return a.Snapshot().Counters.Ticks > 0 })

	a.Stop()
	a.Stop()
}

func TestApp_StartWithoutDetector(t *testing.T) {
	a, err := New(Config{Pipeline: fastConfig()})
	if err != nil {
		t.Fatal(err)
	}
	a.SetCamera(capture.NewGeneratedCamera(testdata.DefaultPulse().Frame))
	a.detector = nil

	if err := a.Start(); err == nil {
		a.Stop()
		t.Fatal("Start() should fail without a detector")
	}
}

func TestApp_SourceExhausted(t *testing.T) {
	pulse := testdata.DefaultPulse()
	frames := pulse.Frames(3)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	a, _ := newTestApp(t, Config{Pipeline: fastConfig()})
	a.SetCamera(capture.NewMockCamera(frames, false))

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done() not closed after the source ran out")
	}
	a.Stop()
}

func TestSnapshot_Channels(t *testing.T) {
	snap := Snapshot{Samples: []*signal.Color{{R: 1, G: 2, B: 3}, nil}}
	r, g, b := snap.Channels()
	if r[0] != 1 || g[0] != 2 || b[0] != 3 || r[1] != 0 || g[1] != 0 || b[1] != 0 {
		t.Errorf("Channels() = %v %v %v", r, g, b)
	}
}
