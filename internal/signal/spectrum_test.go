package signal

import (
	"encoding/json"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
)

// referenceDFT computes the magnitude spectrum with the direct O(n^2) sum.
func referenceDFT(seq []float64) []float64 {
	n := len(seq)
	out := make([]float64, n/2+1)
	for k := range out {
		var sum complex128
		for t, x := range seq {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += complex(x, 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = cmplx.Abs(sum)
	}
	return out
}

func sine(n int, sampleRateHz, freqHz, amplitude, offset float64) []float64 {
	seq := make([]float64, n)
	for i := range seq {
		tSec := float64(i) / sampleRateHz
		seq[i] = offset + amplitude*math.Sin(2*math.Pi*freqHz*tSec)
	}
	return seq
}

func TestMagnitudes_MatchesReferenceDFT(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{2, 7, 16, 60, 80, 97} {
		seq := make([]float64, n)
		for i := range seq {
			seq[i] = rng.Float64()*255 - 64
		}

		got := Magnitudes(seq)
		want := referenceDFT(seq)

		if len(got) != len(want) {
			t.Fatalf("n=%d: len = %d, want %d", n, len(got), len(want))
		}
		for k := range want {
			if math.Abs(got[k]-want[k]) > 1e-6*(1+want[k]) {
				t.Errorf("n=%d bin %d: got %f, want %f", n, k, got[k], want[k])
			}
		}
	}
}

func TestMagnitudes_Empty(t *testing.T) {
	if got := Magnitudes(nil); got != nil {
		t.Errorf("Magnitudes(nil) = %v, want nil", got)
	}
}

func TestFrequencyAxis(t *testing.T) {
	axis := FrequencyAxis(41, 80, 0.1)
	if len(axis) != 41 {
		t.Fatalf("len = %d, want 41", len(axis))
	}
	if axis[0] != 0 {
		t.Errorf("axis[0] = %f, want 0", axis[0])
	}
	// 0.1 Hz over 80 samples: 0.075 cycles/min per bin.
	if math.Abs(axis[1]-0.075) > epsilon {
		t.Errorf("axis[1] = %f, want 0.075", axis[1])
	}
	if math.Abs(axis[40]-NyquistBPM(0.1)) > epsilon {
		t.Errorf("axis[40] = %f, want Nyquist %f", axis[40], NyquistBPM(0.1))
	}
}

const epsilon = 1e-9

func TestEstimator_SinusoidPeak(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		n          int
		freqHz     float64
		wantBin    int
	}{
		{name: "on bin", sampleRate: 1, n: 80, freqHz: 0.2, wantBin: 16},
		{name: "between bins rounds down", sampleRate: 10, n: 64, freqHz: 1.3, wantBin: 8},
		{name: "between bins rounds up", sampleRate: 30, n: 100, freqHz: 2.0, wantBin: 7},
		{name: "low frequency", sampleRate: 15, n: 90, freqHz: 0.5, wantBin: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := sine(tt.n, tt.sampleRate, tt.freqHz, 4, 120)
			spec := NewEstimator(tt.sampleRate).Spectrum(seq, seq, seq)

			p, ok := spec.Peak(Green)
			if !ok {
				t.Fatal("expected a peak")
			}
			if p.Bin != tt.wantBin {
				t.Errorf("peak bin = %d, want %d", p.Bin, tt.wantBin)
			}
		})
	}
}

func TestEstimator_ConstantSignalHasNoPeak(t *testing.T) {
	const n = 80
	buf := NewRingBuffer(n)
	for i := 0; i < n; i++ {
		buf.Push(&Color{R: 180, G: 120, B: 90})
	}

	spec, ok := NewEstimator(DefaultSampleRateHz).EstimateAll(buf)
	if !ok {
		t.Fatal("expected spectrum for complete buffer")
	}

	for _, c := range []Channel{Red, Green, Blue} {
		mags := spec.Channel(c)
		for k := 1; k < len(mags); k++ {
			if mags[k] > 1e-9*n*255 {
				t.Errorf("%s bin %d magnitude = %g, want ~0", c, k, mags[k])
			}
		}
	}

	// DC carries the mean level.
	if math.Abs(spec.Red[0]-180*n) > 1e-6 {
		t.Errorf("red DC = %f, want %f", spec.Red[0], 180.0*n)
	}
}

func TestEstimator_DCExcludedFromPeak(t *testing.T) {
	// Large offset dwarfs the periodic component: DC must still be ignored.
	seq := sine(40, 4, 0.5, 0.01, 10000)
	spec := NewEstimator(4).Spectrum(seq, seq, seq)

	p, ok := spec.Peak(Red)
	if !ok {
		t.Fatal("expected a peak")
	}
	if p.Bin == 0 {
		t.Fatal("peak search selected the DC bin")
	}
	if p.Bin != 5 {
		t.Errorf("peak bin = %d, want 5", p.Bin)
	}
}

func TestSpectrum_PeakTieBreaksLowestBin(t *testing.T) {
	spec := &Spectrum{
		BPM:   []float64{0, 10, 20, 30, 40},
		Red:   []float64{100, 3, 7, 7, 1},
		Green: []float64{100, 5, 5, 5, 5},
		Blue:  []float64{0, 0, 0, 0, 0},
	}

	if p, _ := spec.Peak(Red); p.Bin != 2 {
		t.Errorf("red peak bin = %d, want 2", p.Bin)
	}
	if p, _ := spec.Peak(Green); p.Bin != 1 {
		t.Errorf("green peak bin = %d, want 1", p.Bin)
	}
	if p, _ := spec.Peak(Blue); p.Bin != 1 {
		t.Errorf("blue peak bin = %d, want 1", p.Bin)
	}
}

func TestSpectrum_PeakNeedsNonDCBins(t *testing.T) {
	spec := NewEstimator(1).Spectrum([]float64{5}, []float64{5}, []float64{5})
	if _, ok := spec.Peak(Red); ok {
		t.Error("single-bin spectrum should have no peak")
	}
	if _, ok := spec.Estimate(); ok {
		t.Error("single-bin spectrum should have no estimate")
	}
}

func TestSpectrum_BandLimits(t *testing.T) {
	// 1 Hz over 60 samples: bin k is k cycles/min.
	n := 60
	low := sine(n, 1, 5.0/60, 10, 100)
	high := sine(n, 1, 20.0/60, 3, 0)
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = low[i] + high[i]
	}

	est := &Estimator{SampleRateHz: 1}
	if p, _ := est.Spectrum(seq, seq, seq).Peak(Red); p.Bin != 5 {
		t.Errorf("unbounded peak bin = %d, want 5", p.Bin)
	}

	est.MinBPM = 10
	est.MaxBPM = 25
	p, ok := est.Spectrum(seq, seq, seq).Peak(Red)
	if !ok {
		t.Fatal("expected a peak inside the band")
	}
	if p.Bin != 20 || math.Abs(p.BPM-20) > epsilon {
		t.Errorf("banded peak = %+v, want bin 20 at 20 BPM", p)
	}

	est.MinBPM = 40
	est.MaxBPM = 35
	if _, ok := est.Spectrum(seq, seq, seq).Peak(Red); ok {
		t.Error("empty band should yield no peak")
	}
}

func TestEstimator_HeartRateScenario(t *testing.T) {
	// 1 Hz sampling, 60 samples, 6 s period: 10 cycles/min.
	const (
		sampleRate = 1.0
		n          = 60
	)
	pulse := sine(n, sampleRate, 1.0/6, 2, 100)

	buf := NewRingBuffer(n)
	for i := 0; i < n; i++ {
		buf.Push(&Color{R: 90, G: pulse[i], B: 60})
	}

	spec, ok := NewEstimator(sampleRate).EstimateAll(buf)
	if !ok {
		t.Fatal("expected spectrum")
	}

	est, ok := spec.Estimate()
	if !ok {
		t.Fatal("expected estimate")
	}
	if est.Channel != Green {
		t.Errorf("estimate channel = %s, want green", est.Channel)
	}
	if math.Abs(est.BPM-10) > BinWidthBPM(n, sampleRate) {
		t.Errorf("estimated BPM = %f, want 10 within %f", est.BPM, BinWidthBPM(n, sampleRate))
	}
}

func TestEstimator_DefaultRateResolvesRestingPulse(t *testing.T) {
	// 72 BPM sits between bins 9 and 10 at 7.5 BPM per bin.
	const n = DefaultCapacity
	pulse := sine(n, DefaultSampleRateHz, 72.0/60, 2, 100)

	buf := NewRingBuffer(n)
	for i := 0; i < n; i++ {
		buf.Push(&Color{R: 90, G: pulse[i], B: 60})
	}

	spec, ok := NewEstimator(DefaultSampleRateHz).EstimateAll(buf)
	if !ok {
		t.Fatal("expected spectrum")
	}
	est, ok := spec.Estimate()
	if !ok {
		t.Fatal("expected estimate")
	}

	width := BinWidthBPM(n, DefaultSampleRateHz)
	if est.Channel != Green || math.Abs(est.BPM-72) > width {
		t.Errorf("estimate = %s at %f BPM, want green at 72 within %f", est.Channel, est.BPM, width)
	}
	if NyquistBPM(DefaultSampleRateHz) <= 72 {
		t.Errorf("NyquistBPM = %f, must exceed 72", NyquistBPM(DefaultSampleRateHz))
	}
}

func TestEstimator_IncompleteBuffer(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Push(gray(1))
	buf.Push(nil)
	buf.Push(gray(2))
	buf.Push(gray(3))

	spec, ok := NewEstimator(1).EstimateAll(buf)
	if ok || spec != nil {
		t.Error("incomplete buffer should not produce a spectrum")
	}
}

func TestSpectrum_Clone(t *testing.T) {
	seq := sine(16, 1, 0.25, 1, 0)
	spec := NewEstimator(1).Spectrum(seq, seq, seq)
	c := spec.Clone()
	c.Red[3] = -1

	if spec.Red[3] == -1 {
		t.Error("Clone shares storage with the original")
	}
	var nilSpec *Spectrum
	if nilSpec.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestSpectrum_JSONKeepsBand(t *testing.T) {
	n := 60
	low := sine(n, 1, 5.0/60, 10, 100)
	high := sine(n, 1, 20.0/60, 3, 0)
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = low[i] + high[i]
	}

	est := &Estimator{SampleRateHz: 1, MinBPM: 10, MaxBPM: 25}
	b, err := json.Marshal(est.Spectrum(seq, seq, seq))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Spectrum
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.MinBPM != 10 || decoded.MaxBPM != 25 {
		t.Errorf("band = [%v, %v], want [10, 25]", decoded.MinBPM, decoded.MaxBPM)
	}
	if p, ok := decoded.Peak(Red); !ok || p.Bin != 20 {
		t.Errorf("decoded peak = %+v, %v, want bin 20", p, ok)
	}
}

func TestChannel_JSON(t *testing.T) {
	b, err := json.Marshal(Estimate{Channel: Blue})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(b, &decoded)
	if decoded["channel"] != "blue" {
		t.Errorf("channel = %v, want blue", decoded["channel"])
	}
	if Channel(7).String() != "unknown" {
		t.Errorf("Channel(7).String() = %s", Channel(7).String())
	}
}
