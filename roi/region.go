// Package roi implements the polygon region of interest filter.  Detections
// whose boxes do not sufficiently overlap the active region are discarded
// before tracking.
package roi

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	clipper "github.com/ctessum/go.clipper"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

var (
	// ErrTooFewPoints is returned when a region is defined with fewer than
	// three points
	ErrTooFewPoints = errors.New("region needs at least 3 points")
	// ErrDegeneratePolygon is returned when the region points do not form a
	// polygon with usable area inside the frame
	ErrDegeneratePolygon = errors.New("region polygon is degenerate")
)

// sampleVotes is the number of the five sampled box points (center plus four
// corners) that must land inside the mask for a detection to be kept
const sampleVotes = 3

// mask pixels inside the region are painted with this value
var maskColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// FilterResult is the outcome of filtering one frame's detections against
// the region.  When the mask could not be applied the input detections pass
// through unchanged and Degraded carries the reason.
type FilterResult struct {
	Detections []postprocess.Detection
	Degraded   bool
	Reason     string
}

// Region is a polygon region of interest with a binary mask derived for a
// specific frame shape.  It is not safe for concurrent use.
type Region struct {
	logger *zap.Logger

	// basePoints is the polygon as defined by the user, in the coordinate
	// space of baseWidth x baseHeight.  Rescaling always starts from these
	// points so repeated shape changes do not accumulate rounding drift.
	basePoints []image.Point
	baseWidth  int
	baseHeight int

	// points is the polygon in the coordinate space of the current mask
	points []image.Point
	mask   gocv.Mat

	// maskWidth and maskHeight are the last known frame shape
	maskWidth  int
	maskHeight int
	// maskValid is false when mask regeneration failed for the current
	// frame shape, repeated frames of that shape skip the rebuild
	maskValid bool
}

// NewRegion creates a region from the given polygon points and the frame
// shape they were drawn on.  Points outside the frame are clamped to its
// bounds.  Returns an error when the points do not form a usable polygon,
// in which case no state is committed.
func NewRegion(points []image.Point, frameWidth, frameHeight int,
	logger *zap.Logger) (*Region, error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	if len(points) < 3 {
		return nil, ErrTooFewPoints
	}

	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, fmt.Errorf("invalid frame shape %dx%d",
			frameWidth, frameHeight)
	}

	poly, err := clipToFrame(points, frameWidth, frameHeight)

	if err != nil {
		return nil, err
	}

	r := &Region{
		logger:     logger,
		basePoints: append([]image.Point(nil), points...),
		baseWidth:  frameWidth,
		baseHeight: frameHeight,
		points:     poly,
		mask:       fillMask(poly, frameWidth, frameHeight),
		maskWidth:  frameWidth,
		maskHeight: frameHeight,
		maskValid:  true,
	}

	logger.Info("region of interest set",
		zap.Int("points", len(poly)),
		zap.Int("frame_width", frameWidth),
		zap.Int("frame_height", frameHeight))

	return r, nil
}

// Filter keeps only detections whose boxes sufficiently overlap the region.
// A detection is kept when at least 3 of 5 sampled points (box center and
// the four corners) land inside the mask.  When the frame shape does not
// match the mask the region is rescaled and the mask regenerated, if that
// fails the detections pass through unchanged for this frame.
func (r *Region) Filter(dets []postprocess.Detection,
	frameWidth, frameHeight int) FilterResult {

	if frameWidth != r.maskWidth || frameHeight != r.maskHeight {
		if err := r.rebuild(frameWidth, frameHeight); err != nil {

			r.logger.Warn("region mask regeneration failed, passing all detections",
				zap.Int("frame_width", frameWidth),
				zap.Int("frame_height", frameHeight),
				zap.Error(err))

			return FilterResult{
				Detections: dets,
				Degraded:   true,
				Reason:     fmt.Sprintf("mask regeneration failed: %v", err),
			}
		}
	}

	if !r.maskValid {
		// regeneration already failed for this frame shape
		return FilterResult{
			Detections: dets,
			Degraded:   true,
			Reason:     "mask unavailable for current frame shape",
		}
	}

	kept := make([]postprocess.Detection, 0, len(dets))

	for _, det := range dets {
		if r.boxInside(det.Box) {
			kept = append(kept, det)
		}
	}

	return FilterResult{Detections: kept}
}

// boxInside runs the 5 point majority vote for a single box
func (r *Region) boxInside(box postprocess.BoxRect) bool {

	center := box.Center()

	samples := []image.Point{
		center,
		{X: box.Left, Y: box.Top},
		{X: box.Right, Y: box.Top},
		{X: box.Left, Y: box.Bottom},
		{X: box.Right, Y: box.Bottom},
	}

	inside := 0

	for _, pt := range samples {
		if r.Contains(pt.X, pt.Y) {
			inside++
		}
	}

	return inside >= sampleVotes
}

// Contains reports whether the pixel at x,y is inside the region mask.
// Points outside the mask bounds are never inside.
func (r *Region) Contains(x, y int) bool {

	if !r.maskValid {
		return false
	}

	if x < 0 || y < 0 || x >= r.maskWidth || y >= r.maskHeight {
		return false
	}

	return r.mask.GetUCharAt(y, x) > 0
}

// rebuild rescales the region polygon proportionally from its base shape to
// the new frame shape and regenerates the mask.  The last known frame shape
// is stored even on failure so subsequent frames of the same shape skip the
// rebuild attempt.
func (r *Region) rebuild(frameWidth, frameHeight int) error {

	r.maskWidth = frameWidth
	r.maskHeight = frameHeight
	r.maskValid = false

	if frameWidth <= 0 || frameHeight <= 0 {
		return fmt.Errorf("invalid frame shape %dx%d", frameWidth, frameHeight)
	}

	sx := float64(frameWidth) / float64(r.baseWidth)
	sy := float64(frameHeight) / float64(r.baseHeight)

	scaled := make([]image.Point, len(r.basePoints))

	for i, pt := range r.basePoints {
		scaled[i] = image.Pt(
			int(math.Round(float64(pt.X)*sx)),
			int(math.Round(float64(pt.Y)*sy)),
		)
	}

	poly, err := clipToFrame(scaled, frameWidth, frameHeight)

	if err != nil {
		return err
	}

	r.mask.Close()
	r.mask = fillMask(poly, frameWidth, frameHeight)
	r.points = poly
	r.maskValid = true

	r.logger.Info("region mask regenerated for new frame shape",
		zap.Int("frame_width", frameWidth),
		zap.Int("frame_height", frameHeight))

	return nil
}

// Points returns the polygon points in the coordinate space of the current
// mask, for rendering
func (r *Region) Points() []image.Point {
	return r.points
}

// Mask returns the binary region mask.  The Mat is owned by the Region and
// must not be closed by the caller.
func (r *Region) Mask() gocv.Mat {
	return r.mask
}

// Close releases the mask resources
func (r *Region) Close() error {
	return r.mask.Close()
}

// fillMask paints the polygon onto a zeroed single channel mask of the
// given frame shape
func fillMask(poly []image.Point, frameWidth, frameHeight int) gocv.Mat {

	mask := gocv.NewMatWithSize(frameHeight, frameWidth, gocv.MatTypeCV8UC1)

	pts := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
	defer pts.Close()

	gocv.FillPoly(&mask, pts, maskColor)

	return mask
}

// clipToFrame clamps the polygon to the frame rectangle and rejects
// polygons without usable area
func clipToFrame(points []image.Point, frameWidth, frameHeight int) ([]image.Point, error) {

	subject := make(clipper.Path, 0, len(points))

	for _, pt := range points {
		subject = append(subject, &clipper.IntPoint{
			X: clipper.CInt(pt.X),
			Y: clipper.CInt(pt.Y),
		})
	}

	frame := clipper.Path{
		&clipper.IntPoint{X: 0, Y: 0},
		&clipper.IntPoint{X: clipper.CInt(frameWidth - 1), Y: 0},
		&clipper.IntPoint{X: clipper.CInt(frameWidth - 1), Y: clipper.CInt(frameHeight - 1)},
		&clipper.IntPoint{X: 0, Y: clipper.CInt(frameHeight - 1)},
	}

	c := clipper.NewClipper(clipper.IoNone)

	if !c.AddPath(subject, clipper.PtSubject, true) {
		return nil, ErrDegeneratePolygon
	}

	if !c.AddPath(frame, clipper.PtClip, true) {
		return nil, fmt.Errorf("invalid frame shape %dx%d",
			frameWidth, frameHeight)
	}

	solution, ok := c.Execute1(clipper.CtIntersection,
		clipper.PftEvenOdd, clipper.PftEvenOdd)

	if !ok || len(solution) == 0 {
		return nil, ErrDegeneratePolygon
	}

	// keep the largest area piece of the clipped polygon
	best := 0
	bestArea := math.Abs(clipper.Area(solution[0]))

	for i := 1; i < len(solution); i++ {
		if a := math.Abs(clipper.Area(solution[i])); a > bestArea {
			best = i
			bestArea = a
		}
	}

	if bestArea < 1 {
		return nil, ErrDegeneratePolygon
	}

	poly := make([]image.Point, 0, len(solution[best]))

	for _, pt := range solution[best] {
		poly = append(poly, image.Pt(int(pt.X), int(pt.Y)))
	}

	return poly, nil
}
