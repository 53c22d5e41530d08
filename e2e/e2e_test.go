package e2e

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/pulsecam/internal/app"
	"github.com/ayusman/pulsecam/internal/capture"
	"github.com/ayusman/pulsecam/internal/detector"
	"github.com/ayusman/pulsecam/internal/server"
	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/internal/store"
	"github.com/ayusman/pulsecam/testdata"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// writeLoggingPlugin installs a plugin that appends every request to events.log.
func writeLoggingPlugin(t *testing.T, dir string) string {
	t.Helper()

	pluginDir := filepath.Join(dir, "logger")
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatal(err)
	}

	logPath := filepath.Join(pluginDir, "events.log")
	script := "#!/bin/sh\ncat >> '" + logPath + "'\necho >> '" + logPath + "'\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(pluginDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	manifest := `{"name":"logger","version":"1.0.0","executable":"run.sh","events":["session_start","bpm","session_end"]}`
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	return logPath
}

func getJSON(t *testing.T, client *http.Client, url string, v any) int {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s decode error = %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestE2E_LiveSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("plugin script needs /bin/sh")
	}

	s := newStore(t)
	plugins := t.TempDir()
	eventLog := writeLoggingPlugin(t, plugins)

	application, err := app.New(app.Config{
		Pipeline: app.PipelineConfig{
			WindowSize:       3,
			BufferSize:       16,
			SampleRateHz:     100,
			SpectrumInterval: 10 * time.Millisecond,
		},
		PluginDir: plugins,
		Recorder:  s,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer application.Close()

	pulse := testdata.DefaultPulse()
	pulse.RateHz = 100
	pulse.BPM = 750

	mockDetector := detector.NewMockDetector()
	mockDetector.SetFaces(pulse.Face)
	application.SetDetector(mockDetector)
	application.SetCamera(capture.NewGeneratedCamera(pulse.Frame))

	if err := application.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}

	srv := server.New(server.Config{Runtime: application, History: s})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	if err := application.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sessionID := application.SessionID()
	if sessionID == "" {
		t.Fatal("Start() should begin a recorded session")
	}

	t.Run("StateReportsEstimate", func(t *testing.T) {
		deadline := time.Now().Add(5 * time.Second)
		for {
			var state struct {
				State     string           `json:"state"`
				SessionID string           `json:"session_id"`
				Estimate  *signal.Estimate `json:"estimate"`
			}
			getJSON(t, client, ts.URL+"/api/state", &state)
			if state.Estimate != nil {
				if state.State != "tracking" {
					t.Errorf("state = %q, want tracking", state.State)
				}
				if state.SessionID != sessionID {
					t.Errorf("session_id = %q, want %q", state.SessionID, sessionID)
				}
				if state.Estimate.BPM <= 0 {
					t.Errorf("estimate BPM = %v, want positive", state.Estimate.BPM)
				}
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for an estimate")
			}
			time.Sleep(20 * time.Millisecond)
		}
	})

	t.Run("DisableAndEnable", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/enabled", "application/json", strings.NewReader(`{"enabled": false}`))
		if err != nil {
			t.Fatalf("POST /api/enabled error = %v", err)
		}
		resp.Body.Close()
		if application.IsEnabled() {
			t.Error("application should be disabled")
		}

		resp, _ = client.Post(ts.URL+"/api/enabled", "application/json", strings.NewReader(`{"enabled": true}`))
		resp.Body.Close()
		if !application.IsEnabled() {
			t.Error("application should be enabled again")
		}
	})

	application.Stop()

	t.Run("SessionIsRecorded", func(t *testing.T) {
		var listed struct {
			Sessions []store.Session `json:"sessions"`
		}
		if code := getJSON(t, client, ts.URL+"/api/sessions", &listed); code != http.StatusOK {
			t.Fatalf("GET /api/sessions status = %d", code)
		}
		if len(listed.Sessions) != 1 || listed.Sessions[0].ID != sessionID {
			t.Fatalf("sessions = %+v", listed.Sessions)
		}
		if listed.Sessions[0].EndedAt == nil {
			t.Error("session should be ended after Stop()")
		}
		if listed.Sessions[0].BufferSize != 16 {
			t.Errorf("buffer_size = %d, want 16", listed.Sessions[0].BufferSize)
		}

		var detail struct {
			Summary store.Summary `json:"summary"`
		}
		getJSON(t, client, ts.URL+"/api/sessions/"+sessionID, &detail)

		var estimates struct {
			Estimates []store.Estimate `json:"estimates"`
		}
		getJSON(t, client, ts.URL+"/api/sessions/"+sessionID+"/estimates?limit=0", &estimates)

		if detail.Summary.Count == 0 || detail.Summary.Count != len(estimates.Estimates) {
			t.Errorf("summary count = %d, estimates = %d", detail.Summary.Count, len(estimates.Estimates))
		}
	})

	t.Run("PluginSawLifecycle", func(t *testing.T) {
		data, err := os.ReadFile(eventLog)
		if err != nil {
			t.Fatalf("read plugin log: %v", err)
		}
		log := string(data)
		for _, event := range []string{`"event":"session_start"`, `"event":"bpm"`, `"event":"session_end"`} {
			if !strings.Contains(log, event) {
				t.Errorf("plugin log missing %s", event)
			}
		}
		if !strings.Contains(log, sessionID) {
			t.Error("plugin requests should carry the session id")
		}
	})

	t.Run("HealthAfterStop", func(t *testing.T) {
		if code := getJSON(t, client, ts.URL+"/api/health", nil); code != http.StatusOK {
			t.Errorf("health status = %d", code)
		}
	})
}

func TestE2E_AnalyzeAndRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s := newStore(t)

	// 20 seconds at 10 Hz of a 60 BPM pulse
	pulse := testdata.DefaultPulse()
	frames := pulse.Frames(200)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	src := capture.NewMockCamera(frames, false)
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	d := detector.NewMockDetector()
	d.SetFaces(pulse.Face)

	cfg := app.DefaultPipelineConfig()
	cfg.SampleRateHz = 10
	cfg.BufferSize = 100

	sessionID, err := s.BeginSession(cfg.WindowSize, cfg.BufferSize, cfg.SampleRateHz)
	if err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}

	result, err := app.Analyze(context.Background(), src, d, app.AnalyzeOptions{
		Pipeline:  cfg,
		SourceFPS: 10,
		OnEstimate: func(_ time.Duration, est signal.Estimate) {
			if err := s.RecordEstimate(sessionID, est); err != nil {
				t.Errorf("RecordEstimate() error = %v", err)
			}
		},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if err := s.EndSession(sessionID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	// 100 samples at 10 Hz put bins 6 BPM apart; 60 BPM is bin 10
	if result.Estimates != 101 {
		t.Errorf("Estimates = %d, want 101", result.Estimates)
	}
	if result.Last == nil || math.Abs(result.Last.BPM-60) > 1e-9 || result.Last.Channel != signal.Green {
		t.Errorf("Last = %+v, want 60 BPM on green", result.Last)
	}

	sum, err := s.Summarize(sessionID)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.Count != result.Estimates || math.Abs(sum.MinBPM-60) > 1e-9 || math.Abs(sum.MaxBPM-60) > 1e-9 {
		t.Errorf("Summarize() = %+v", sum)
	}
}
