// Package pipeline wires the frame processing stages together: tensor
// decoding, filtering and NMS, region of interest filtering, tracking and
// line crossing counting.  One Pipeline instance processes one video source
// and must only ever be driven from a single goroutine, see Runner.
package pipeline

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	vehiclecount "github.com/unklbee/vc-yov5n-ver2"
	"github.com/unklbee/vc-yov5n-ver2/counter"
	"github.com/unklbee/vc-yov5n-ver2/postprocess"
	"github.com/unklbee/vc-yov5n-ver2/roi"
	"github.com/unklbee/vc-yov5n-ver2/tracker"
)

// maxFrameSkip bounds the frame skip knob
const maxFrameSkip = 10

// LineEvent is a crossing event tagged with the line that fired it
type LineEvent struct {
	LineID    int
	Class     string
	Direction counter.Direction
}

// Result is the outcome of processing a single frame
type Result struct {
	// FrameIndex counts frames submitted to the pipeline, starting at 1
	FrameIndex int
	// Tracks are the confirmed tracked detections for this frame
	Tracks []postprocess.Detection
	// Events are the crossing events fired this frame
	Events []LineEvent
	// Skipped is true when the frame skip policy re-emitted the previous
	// tracker output without running detection
	Skipped bool
	// Degraded carries the reason when a stage fell back to a safe
	// default, eg: the region filter passing all detections through
	Degraded string
}

// Pipeline orchestrates the per frame processing stages
type Pipeline struct {
	cfg    vehiclecount.Config
	logger *zap.Logger

	process *postprocess.YOLOv5
	track   *tracker.IoUTracker

	region *roi.Region
	lines  []*counter.Line

	// vehicleCounts aggregates crossing tallies per class over all lines,
	// pre-populated with every vehicle class at zero
	vehicleCounts map[string]*counter.Tally

	frameSkip    int
	frameCounter int
}

// New returns a pipeline configured with cfg.  A nil logger disables
// logging.
func New(cfg vehiclecount.Config, logger *zap.Logger) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:           cfg,
		logger:        logger,
		process:       postprocess.NewYOLOv5(postprocess.ParamsFromConfig(cfg)),
		track:         tracker.NewIoUTracker(tracker.ParamsFromConfig(cfg)),
		vehicleCounts: make(map[string]*counter.Tally),
		frameSkip:     cfg.FrameSkip,
	}

	for _, name := range vehiclecount.ClassNames() {
		p.vehicleCounts[name] = &counter.Tally{}
	}

	// drop per line side state when a track ages out
	p.track.OnRemove(func(trackID int) {
		for _, line := range p.lines {
			line.Forget(trackID)
		}
	})

	return p, nil
}

// Process runs one frame through the pipeline.  The tensor is the raw
// [N, 5+C] output of the detection model for this frame, frameWidth and
// frameHeight are the source frame's pixel dimensions.  Process never fails
// on a bad frame, a malformed tensor yields an empty result with the
// condition noted in Degraded.
func (p *Pipeline) Process(t postprocess.Tensor, frameWidth, frameHeight int) Result {

	p.frameCounter++

	res := Result{FrameIndex: p.frameCounter}

	// frame skip policy: skipped frames re-emit the last confirmed tracks
	// and perform no detection or counting work
	if p.frameCounter%p.frameSkip != 0 {
		res.Skipped = true
		res.Tracks = p.track.LastConfirmed()
		return res
	}

	if !t.Valid() && len(t.Data) > 0 {
		p.logger.Warn("malformed detection tensor, treating frame as empty",
			zap.Int("len", len(t.Data)),
			zap.Int("cols", t.Cols))
		res.Degraded = "malformed detection tensor"
	}

	dets := p.process.DetectVehicles(t, frameWidth, frameHeight)

	if p.region != nil {

		filtered := p.region.Filter(dets, frameWidth, frameHeight)
		dets = filtered.Detections

		if filtered.Degraded {
			// keep any earlier degradation reason for this frame
			if res.Degraded != "" {
				res.Degraded += "; " + filtered.Reason
			} else {
				res.Degraded = filtered.Reason
			}
		}
	}

	res.Tracks = p.track.Update(dets)

	for _, line := range p.lines {
		for _, crossing := range line.Update(res.Tracks) {

			res.Events = append(res.Events, LineEvent{
				LineID:    line.ID(),
				Class:     crossing.Class,
				Direction: crossing.Direction,
			})

			p.countCrossing(crossing)
		}
	}

	return res
}

// countCrossing folds one crossing into the aggregated per class tallies
func (p *Pipeline) countCrossing(c counter.Crossing) {

	tally, ok := p.vehicleCounts[c.Class]

	if !ok {
		tally = &counter.Tally{}
		p.vehicleCounts[c.Class] = tally
	}

	switch c.Direction {
	case counter.DirectionUp:
		tally.Up++
	case counter.DirectionDown:
		tally.Down++
	}

	p.logger.Info("vehicle crossed line",
		zap.String("class", c.Class),
		zap.String("direction", string(c.Direction)))
}

// SetRegion replaces the active region of interest.  The points must form a
// polygon per roi.NewRegion, on error the previous region is kept.
func (p *Pipeline) SetRegion(points []image.Point, frameWidth, frameHeight int) error {

	region, err := roi.NewRegion(points, frameWidth, frameHeight, p.logger)

	if err != nil {
		return err
	}

	if p.region != nil {
		p.region.Close()
	}

	p.region = region

	return nil
}

// ClearRegion removes the active region, detections are no longer filtered
// by location
func (p *Pipeline) ClearRegion() {

	if p.region != nil {
		p.region.Close()
		p.region = nil
	}
}

// Region returns the active region or nil
func (p *Pipeline) Region() *roi.Region {
	return p.region
}

// AddLine adds a counting line between the two points and returns its
// sequential line ID
func (p *Pipeline) AddLine(p1, p2 image.Point) (int, error) {

	line, err := counter.NewLine(len(p.lines), p1, p2)

	if err != nil {
		return 0, err
	}

	p.lines = append(p.lines, line)

	p.logger.Info("counting line added",
		zap.Int("line_id", line.ID()),
		zap.Int("x1", p1.X), zap.Int("y1", p1.Y),
		zap.Int("x2", p2.X), zap.Int("y2", p2.Y))

	return line.ID(), nil
}

// Lines returns the active counting lines
func (p *Pipeline) Lines() []*counter.Line {
	return p.lines
}

// ClearAnnotations removes the region, all counting lines and zeroes the
// aggregated tallies.  The tracker keeps running, use ResetTracker to clear
// track identities.
func (p *Pipeline) ClearAnnotations() {

	p.ClearRegion()
	p.lines = nil

	for _, tally := range p.vehicleCounts {
		*tally = counter.Tally{}
	}

	p.logger.Info("region and counting lines cleared")
}

// ResetTracker clears all tracks and restarts track ID's at 1, used when
// the video source changes
func (p *Pipeline) ResetTracker() {
	p.track.Reset()
}

// SetFrameSkip changes the frame skip policy, clamped to 1..10
func (p *Pipeline) SetFrameSkip(skip int) {

	if skip < 1 {
		skip = 1
	}

	if skip > maxFrameSkip {
		skip = maxFrameSkip
	}

	p.frameSkip = skip
}

// Tracker exposes the underlying tracker for trail rendering
func (p *Pipeline) Tracker() *tracker.IoUTracker {
	return p.track
}

// VehicleCounts returns a snapshot of the aggregated per class tallies
// over all counting lines
func (p *Pipeline) VehicleCounts() map[string]counter.Tally {

	counts := make(map[string]counter.Tally, len(p.vehicleCounts))

	for name, tally := range p.vehicleCounts {
		counts[name] = *tally
	}

	return counts
}

// Statistics returns a snapshot of every line's tallies
func (p *Pipeline) Statistics() []counter.Statistics {

	stats := make([]counter.Statistics, 0, len(p.lines))

	for _, line := range p.lines {
		stats = append(stats, line.Statistics())
	}

	return stats
}

// Close releases pipeline resources
func (p *Pipeline) Close() {
	p.ClearRegion()
}
