package app

import (
	"time"

	"github.com/ayusman/pulsecam/internal/signal"
	"github.com/ayusman/pulsecam/internal/tracking"
)

// Snapshot is an immutable view of the runtime state for readers outside
// the processing goroutine.
type Snapshot struct {
	Enabled    bool             `json:"enabled"`
	Running    bool             `json:"running"`
	SessionID  string           `json:"session_id,omitempty"`
	State      State            `json:"state"`
	Face       *tracking.Rect   `json:"face"`
	Forehead   *tracking.Rect   `json:"forehead"`
	Detections int              `json:"detections"`
	Samples    []*signal.Color  `json:"samples"`
	Spectrum   *signal.Spectrum `json:"spectrum,omitempty"`
	Estimate   *signal.Estimate `json:"estimate,omitempty"`
	Motion     float64          `json:"motion"`
	Moving     bool             `json:"moving"`
	Config     PipelineConfig   `json:"config"`
	Counters   Counters         `json:"counters"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Counters tracks pipeline activity since Start. Unsent counts estimates
// the sink dropped before recording and publishing.
type Counters struct {
	Ticks     int `json:"ticks"`
	Gaps      int `json:"gaps"`
	Errors    int `json:"errors"`
	Dropped   int `json:"dropped"`
	Estimates int `json:"estimates"`
	Unsent    int `json:"unsent"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Face = cloneRect(s.Face)
	c.Forehead = cloneRect(s.Forehead)
	if s.Samples != nil {
		c.Samples = make([]*signal.Color, len(s.Samples))
		for i, sample := range s.Samples {
			if sample != nil {
				v := *sample
				c.Samples[i] = &v
			}
		}
	}
	c.Spectrum = s.Spectrum.Clone()
	if s.Estimate != nil {
		est := *s.Estimate
		c.Estimate = &est
	}
	return c
}

// Channels returns the sample history as three series for plotting; gaps
// are reported as zero.
func (s Snapshot) Channels() (r, g, b []float64) {
	r = make([]float64, len(s.Samples))
	g = make([]float64, len(s.Samples))
	b = make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		if sample == nil {
			continue
		}
		r[i], g[i], b[i] = sample.R, sample.G, sample.B
	}
	return r, g, b
}
