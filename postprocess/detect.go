package postprocess

import "image"

// BoxRect are the dimensions of the bounding box of a detected object in
// frame pixel coordinates
type BoxRect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Width returns the pixel width of the box
func (b BoxRect) Width() int {
	return b.Right - b.Left
}

// Height returns the pixel height of the box
func (b BoxRect) Height() int {
	return b.Bottom - b.Top
}

// Area returns the pixel area of the box
func (b BoxRect) Area() int {
	return b.Width() * b.Height()
}

// Center returns the center point of the box
func (b BoxRect) Center() image.Point {
	return image.Pt((b.Left+b.Right)/2, (b.Top+b.Bottom)/2)
}

// Detection defines the attributes of a single vehicle detected in a frame
type Detection struct {
	// Box are the bounding box dimensions of the object location
	Box BoxRect
	// Class is the COCO class ID of the detected object
	Class int
	// ClassName is the vehicle label for Class
	ClassName string
	// Confidence is the objectness score of the detection
	Confidence float32
	// TrackID is the tracker assigned identity.  Zero until the detection
	// has been matched to a track, assigned ID's start at 1.
	TrackID int
}
