// Package testdata generates synthetic camera frames for tests.
package testdata

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Pulse describes a synthetic subject whose face brightens and darkens at a
// fixed heart rate.
type Pulse struct {
	Width, Height int
	// Face is painted with Skin, the rest of the frame with Background.
	Face image.Rectangle
	// BPM is the modulation frequency in cycles per minute.
	BPM float64
	// RateHz is the frame rate the index passed to Frame is sampled at.
	RateHz float64
	// Amplitude is the peak green-channel swing in 8-bit levels.
	Amplitude float64
	// Skin and Background are BGR scalars.
	Skin       gocv.Scalar
	Background gocv.Scalar
}

// DefaultPulse returns a 320x240 frame with a face at (100,50) sized
// 120x150 pulsing at 60 BPM sampled at 10 Hz.
func DefaultPulse() Pulse {
	return Pulse{
		Width:      320,
		Height:     240,
		Face:       image.Rect(100, 50, 220, 200),
		BPM:        60,
		RateHz:     10,
		Amplitude:  20,
		Skin:       gocv.NewScalar(90, 120, 180, 0),
		Background: gocv.NewScalar(40, 40, 40, 0),
	}
}

// Green returns the green level of the face at frame i.
func (p Pulse) Green(i int) float64 {
	t := float64(i) / p.RateHz
	return p.Skin.Val2 + p.Amplitude*math.Sin(2*math.Pi*p.BPM/60*t)
}

// Frame renders frame i. The caller owns the returned Mat.
func (p Pulse) Frame(i int) gocv.Mat {
	frame := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV8UC3)
	frame.SetTo(p.Background)

	face := p.Face.Intersect(image.Rect(0, 0, p.Width, p.Height))
	if !face.Empty() {
		region := frame.Region(face)
		region.SetTo(gocv.NewScalar(p.Skin.Val1, p.Green(i), p.Skin.Val3, 0))
		region.Close()
	}

	return frame
}

// Frames renders frames 0..n-1.
func (p Pulse) Frames(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		f := p.Frame(i)
		frames[i] = &f
	}
	return frames
}

// Blank renders a frame with no face.
func (p Pulse) Blank() gocv.Mat {
	frame := gocv.NewMatWithSize(p.Height, p.Width, gocv.MatTypeCV8UC3)
	frame.SetTo(p.Background)
	return frame
}
