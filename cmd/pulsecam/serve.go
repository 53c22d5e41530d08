package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ayusman/pulsecam/internal/app"
	"github.com/ayusman/pulsecam/internal/plugin"
	"github.com/ayusman/pulsecam/internal/server"
	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/internal/stream"
	"github.com/ayusman/pulsecam/internal/tray"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	pipelineFlags

	Addr          string
	CameraID      int
	PluginDir     string
	PluginTimeout time.Duration
	MotionThresh  float64
	NatsURL       string
	NatsSubject   string
	MQTTBroker    string
	MQTTTopic     string
	WebDir        string
	Tray          bool
	NoRecord      bool
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Estimate heart rate from a live camera and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	serveOpts.register(f, signal.DefaultSampleRateHz)
	f.StringVar(&serveOpts.Addr, "addr", ":8080", "HTTP listen address")
	f.IntVar(&serveOpts.CameraID, "camera", 0, "Camera device index")
	f.StringVar(&serveOpts.PluginDir, "plugins", filepath.Join(dataDir(), "plugins"), "Plugin directory")
	f.DurationVar(&serveOpts.PluginTimeout, "plugin-timeout", plugin.DefaultTimeout, "Timeout for a single plugin run")
	f.Float64Var(&serveOpts.MotionThresh, "motion-threshold", app.DefaultMotionThreshold, "Percent of changed forehead pixels reported as movement")
	f.StringVar(&serveOpts.NatsURL, "nats", "", "NATS server URL to publish estimates to")
	f.StringVar(&serveOpts.NatsSubject, "nats-subject", stream.DefaultSubject, "NATS subject for estimates")
	f.StringVar(&serveOpts.MQTTBroker, "mqtt", "", "MQTT broker to publish estimates to (for example tcp://localhost:1883)")
	f.StringVar(&serveOpts.MQTTTopic, "mqtt-topic", stream.DefaultTopic, "MQTT topic for estimates")
	f.StringVar(&serveOpts.WebDir, "web", "", "Static dashboard directory (default: search common locations)")
	f.BoolVar(&serveOpts.Tray, "tray", false, "Show a system tray icon with the live heart rate")
	f.BoolVar(&serveOpts.NoRecord, "no-record", false, "Do not record the session")
}

func runServe(ctx context.Context, opts serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := app.Config{
		Pipeline:      opts.pipeline(),
		CameraID:      opts.CameraID,
		PluginDir:     opts.PluginDir,
		PluginTimeout: opts.PluginTimeout,
		MotionThresh:  opts.MotionThresh,
	}
	if !opts.NoRecord {
		cfg.Recorder = DB
	}

	var publishers stream.Multi
	if opts.NatsURL != "" {
		nc, err := stream.Connect(opts.NatsURL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Drain()
		publishers = append(publishers, stream.NewPublisher(nc, opts.NatsSubject))
		log.Printf("Publishing estimates to %s on %s", opts.NatsURL, opts.NatsSubject)
	}
	if opts.MQTTBroker != "" {
		client, err := stream.ConnectMQTT(opts.MQTTBroker)
		if err != nil {
			return fmt.Errorf("connect to MQTT: %w", err)
		}
		defer client.Disconnect(250)
		publishers = append(publishers, stream.NewMQTTPublisher(client, opts.MQTTTopic))
		log.Printf("Publishing estimates to %s on %s", opts.MQTTBroker, opts.MQTTTopic)
	}
	switch len(publishers) {
	case 0:
	case 1:
		cfg.Publisher = publishers[0]
	default:
		cfg.Publisher = publishers
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.customDetector() {
		d, err := opts.detector()
		if err != nil {
			return err
		}
		if old := a.Detector(); old != nil {
			old.Close()
		}
		a.SetDetector(d)
	}

	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	if err := a.Start(); err != nil {
		return err
	}

	webDir := opts.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Printf("Serving static files from: %s", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Runtime:   a,
		History:   DB,
	})
	defer srv.Close()

	httpSrv := &http.Server{Addr: opts.Addr, Handler: srv}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", opts.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if opts.Tray {
		runTray(ctx, cancel, a, dashboardURL(opts.Addr))
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
		log.Println("Camera stream ended")
	case err = <-errCh:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx)

	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// runTray blocks until the tray quits or ctx is cancelled.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App, url string) {
	t := tray.New()
	t.SetEnabled(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnSettings(func() {
		if err := openBrowser(url); err != nil {
			log.Printf("Error opening browser: %v", err)
		}
	})
	t.OnQuit(cancel)
	a.OnEstimate(func(est signal.Estimate) {
		t.SetBPM(est.BPM)
	})

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-ticker.C:
				t.SetTracking(a.Snapshot().State == app.Tracking)
			}
		}
	}()

	t.Run()
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
