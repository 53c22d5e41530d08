// Package main provides a plugin that raises an alert when the heart rate
// leaves a configured range. With notify set it also posts a desktop
// notification through osascript on macOS or notify-send elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event     string          `json:"event"`
	SessionID string          `json:"session_id"`
	BPM       float64         `json:"bpm"`
	Channel   string          `json:"channel"`
	Config    json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config bounds the accepted heart rate.
type Config struct {
	MinBPM float64 `json:"min_bpm"`
	MaxBPM float64 `json:"max_bpm"`
	Notify bool    `json:"notify"`
}

// Alert is returned in the response data.
type Alert struct {
	Alert   bool    `json:"alert"`
	BPM     float64 `json:"bpm"`
	Message string  `json:"message,omitempty"`
}

var defaultConfig = Config{MinBPM: 45, MaxBPM: 120}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != "bpm" {
		writeResponse(Alert{})
		return
	}

	cfg, err := parseConfig(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	alert := evaluate(cfg, req.BPM)
	if alert.Alert && cfg.Notify {
		if err := notify(alert.Message); err != nil {
			writeErrorResponse(fmt.Sprintf("notify failed: %v", err))
			return
		}
	}
	writeResponse(alert)
}

func parseConfig(raw json.RawMessage) (Config, error) {
	cfg := defaultConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxBPM > 0 && cfg.MinBPM > cfg.MaxBPM {
		return cfg, fmt.Errorf("min_bpm %.0f exceeds max_bpm %.0f", cfg.MinBPM, cfg.MaxBPM)
	}
	return cfg, nil
}

// evaluate compares bpm against the configured range. A zero bound is open.
func evaluate(cfg Config, bpm float64) Alert {
	switch {
	case cfg.MinBPM > 0 && bpm < cfg.MinBPM:
		return Alert{Alert: true, BPM: bpm, Message: fmt.Sprintf("Heart rate %.0f BPM is below %.0f", bpm, cfg.MinBPM)}
	case cfg.MaxBPM > 0 && bpm > cfg.MaxBPM:
		return Alert{Alert: true, BPM: bpm, Message: fmt.Sprintf("Heart rate %.0f BPM is above %.0f", bpm, cfg.MaxBPM)}
	}
	return Alert{BPM: bpm}
}

func notify(message string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("osascript", "-e", fmt.Sprintf(`display notification %q with title "PulseCam"`, message))
	} else {
		cmd = exec.Command("notify-send", "PulseCam", message)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeResponse(alert Alert) {
	data, _ := json.Marshal(alert)
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
