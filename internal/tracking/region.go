package tracking

// Forehead offsets as fractions of the face box, measured from its top-left corner.
const (
	foreheadLeft   = 0.3
	foreheadRight  = 0.7
	foreheadTop    = 0.0
	foreheadBottom = 0.25
)

// Forehead derives the forehead region from a frontal face bounding box.
// It spans 30%-70% of the face width and the top 25% of the face height.
func Forehead(face Rect) Rect {
	p0x, p0y := face.X, face.Y
	p1x, p1y := face.X+face.Width, face.Y+face.Height

	x0 := (p1x-p0x)*foreheadLeft + p0x
	y0 := (p1y-p0y)*foreheadTop + p0y
	x1 := (p1x-p0x)*foreheadRight + p0x
	y1 := (p1y-p0y)*foreheadBottom + p0y

	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
