// Package plugin discovers external hook executables and runs them when the
// heart-rate pipeline produces events.
package plugin

import "encoding/json"

// Events a plugin can subscribe to.
const (
	EventSessionStart = "session_start"
	EventBPM          = "bpm"
	EventSessionEnd   = "session_end"
)

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []string        `json:"events"`
	Config       json.RawMessage `json:"config,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Handles reports whether the manifest subscribes to event.
func (m Manifest) Handles(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is the JSON document written to a plugin's stdin.
type Request struct {
	Event     string             `json:"event"`
	SessionID string             `json:"session_id,omitempty"`
	BPM       float64            `json:"bpm,omitempty"`
	Channel   string             `json:"channel,omitempty"`
	Channels  map[string]float64 `json:"channels,omitempty"`
	Config    json.RawMessage    `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
