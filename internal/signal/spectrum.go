package signal

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// DefaultSampleRateHz is the color sampling rate used when none is configured:
// one frame every 100 ms.
const DefaultSampleRateHz = 10.0

// Channel identifies a color channel of a spectrum.
type Channel int

// Color channels in aggregation tie-break order.
const (
	Red Channel = iota
	Green
	Blue
)

var channelNames = [...]string{"red", "green", "blue"}

// String returns the lower-case channel name.
func (c Channel) String() string {
	if c < Red || c > Blue {
		return "unknown"
	}
	return channelNames[c]
}

// MarshalText encodes the channel by name.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Magnitudes returns |X[k]| for the non-negative frequency half of the
// discrete Fourier transform of seq, len(seq)/2+1 values. No window is applied.
func Magnitudes(seq []float64) []float64 {
	switch len(seq) {
	case 0:
		return nil
	case 1:
		return []float64{math.Abs(seq[0])}
	}

	fft := fourier.NewFFT(len(seq))
	coeffs := fft.Coefficients(nil, seq)

	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// FrequencyAxis returns the frequency of each of bins in cycles per minute
// for an n-sample transform taken at sampleRateHz.
func FrequencyAxis(bins, n int, sampleRateHz float64) []float64 {
	axis := make([]float64, bins)
	if n == 0 {
		return axis
	}
	for k := range axis {
		axis[k] = float64(k) * sampleRateHz / float64(n) * 60
	}
	return axis
}

// Peak is the dominant bin of one channel.
type Peak struct {
	Bin       int     `json:"bin"`
	BPM       float64 `json:"bpm"`
	Magnitude float64 `json:"magnitude"`
}

// Estimate is a heart-rate estimate derived from a spectrum.
type Estimate struct {
	BPM     float64 `json:"bpm"`
	Channel Channel `json:"channel"`
	Red     Peak    `json:"red"`
	Green   Peak    `json:"green"`
	Blue    Peak    `json:"blue"`
}

// Spectrum holds per-channel magnitude spectra over a shared frequency axis.
type Spectrum struct {
	BPM          []float64 `json:"bpm"`
	Red          []float64 `json:"red"`
	Green        []float64 `json:"green"`
	Blue         []float64 `json:"blue"`
	Samples      int       `json:"samples"`
	SampleRateHz float64   `json:"sample_rate_hz"`
	// MinBPM and MaxBPM bound the peak search; zero disables a bound.
	MinBPM       float64   `json:"min_bpm,omitempty"`
	MaxBPM       float64   `json:"max_bpm,omitempty"`
}

// Channel returns the magnitudes of channel c.
func (s *Spectrum) Channel(c Channel) []float64 {
	switch c {
	case Red:
		return s.Red
	case Green:
		return s.Green
	case Blue:
		return s.Blue
	}
	return nil
}

// Peak finds the highest-magnitude bin of channel c. Bin 0 (DC) is never a
// candidate; ties resolve to the lowest bin. It returns false when no bin
// qualifies.
func (s *Spectrum) Peak(c Channel) (Peak, bool) {
	mags := s.Channel(c)
	lo, hi, ok := s.searchRange(len(mags))
	if !ok {
		return Peak{}, false
	}

	k := lo + floats.MaxIdx(mags[lo:hi+1])
	return Peak{Bin: k, BPM: s.BPM[k], Magnitude: mags[k]}, true
}

// searchRange returns the inclusive bin range eligible for peak search.
func (s *Spectrum) searchRange(n int) (lo, hi int, ok bool) {
	if n < 2 || len(s.BPM) != n {
		return 0, 0, false
	}

	lo, hi = 1, n-1
	if s.MinBPM > 0 {
		for lo <= hi && s.BPM[lo] < s.MinBPM {
			lo++
		}
	}
	if s.MaxBPM > 0 {
		for hi >= lo && s.BPM[hi] > s.MaxBPM {
			hi--
		}
	}
	return lo, hi, lo <= hi
}

// Estimate derives per-channel peaks and an aggregated heart rate taken from
// the channel with the strongest peak.
func (s *Spectrum) Estimate() (Estimate, bool) {
	var est Estimate
	best := -1.0

	for _, c := range []Channel{Red, Green, Blue} {
		p, ok := s.Peak(c)
		if !ok {
			return Estimate{}, false
		}
		switch c {
		case Red:
			est.Red = p
		case Green:
			est.Green = p
		case Blue:
			est.Blue = p
		}
		if p.Magnitude > best {
			best = p.Magnitude
			est.BPM = p.BPM
			est.Channel = c
		}
	}

	return est, true
}

// Clone returns a deep copy of the spectrum.
func (s *Spectrum) Clone() *Spectrum {
	if s == nil {
		return nil
	}
	c := *s
	c.BPM = append([]float64(nil), s.BPM...)
	c.Red = append([]float64(nil), s.Red...)
	c.Green = append([]float64(nil), s.Green...)
	c.Blue = append([]float64(nil), s.Blue...)
	return &c
}

// Estimator turns a complete color history into spectra.
type Estimator struct {
	// SampleRateHz is the rate at which the ring buffer is filled.
	SampleRateHz float64
	// MinBPM and MaxBPM bound the peak search; zero disables a bound.
	MinBPM float64
	MaxBPM float64
}

// NewEstimator creates an Estimator for samples taken at sampleRateHz.
func NewEstimator(sampleRateHz float64) *Estimator {
	return &Estimator{SampleRateHz: sampleRateHz}
}

// EstimateAll computes the spectrum of every channel of buf. It returns false
// unless the buffer is complete.
func (e *Estimator) EstimateAll(buf *RingBuffer) (*Spectrum, bool) {
	r, g, b, ok := buf.Channels()
	if !ok {
		return nil, false
	}
	return e.Spectrum(r, g, b), true
}

// Spectrum computes the spectrum of three equal-length channel series.
func (e *Estimator) Spectrum(r, g, b []float64) *Spectrum {
	red := Magnitudes(r)
	return &Spectrum{
		BPM:          FrequencyAxis(len(red), len(r), e.SampleRateHz),
		Red:          red,
		Green:        Magnitudes(g),
		Blue:         Magnitudes(b),
		Samples:      len(r),
		SampleRateHz: e.SampleRateHz,
		MinBPM:       e.MinBPM,
		MaxBPM:       e.MaxBPM,
	}
}

// NyquistBPM returns the highest representable frequency in cycles per minute.
func NyquistBPM(sampleRateHz float64) float64 {
	return sampleRateHz / 2 * 60
}

// BinWidthBPM returns the frequency resolution of an n-sample transform in
// cycles per minute.
func BinWidthBPM(n int, sampleRateHz float64) float64 {
	if n == 0 {
		return math.Inf(1)
	}
	return sampleRateHz / float64(n) * 60
}
