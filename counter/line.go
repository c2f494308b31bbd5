// Package counter implements line crossing counting.  Each counting line
// tracks which side of the line every confirmed track sits on and emits a
// directional crossing event when a track's side flips.
package counter

import (
	"errors"
	"image"

	vehiclecount "github.com/unklbee/vc-yov5n-ver2"
	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// ErrDegenerateLine is returned when both endpoints of a counting line are
// within the minimum pixel separation of each other
var ErrDegenerateLine = errors.New("line points are too close together")

// minSeparation is the pixel tolerance below which two line endpoints are
// considered the same point
const minSeparation = 5

// Direction of a crossing relative to the line's positive side
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Crossing is a single crossing event emitted when a tracked vehicle moves
// from one side of a line to the other
type Crossing struct {
	// Class is the vehicle class label of the crossing track
	Class string
	// Direction the track crossed in
	Direction Direction
}

// Tally holds the directional crossing counts
type Tally struct {
	Up   int
	Down int
}

// Total returns the sum of both directions
func (t Tally) Total() int {
	return t.Up + t.Down
}

// sideState is the per track state a line remembers between frames
type sideState struct {
	side  int
	class string
}

// Statistics is a snapshot of a line's crossing tallies
type Statistics struct {
	LineID int
	P1, P2 image.Point
	// Crossings is the total tally over all vehicle classes
	Crossings Tally
	// PerClass tallies keyed by vehicle class label
	PerClass map[string]Tally
	// TrackedVehicles is the number of tracks with recorded side state
	TrackedVehicles int
}

// Line is a single counting line with its per class directional tallies.
// Not safe for concurrent use.
type Line struct {
	id int
	p1 image.Point
	p2 image.Point

	// states holds the last observed side per track ID
	states map[int]sideState

	// perClass tallies are pre-populated with every vehicle class at zero
	// so readers never mutate the map
	perClass map[string]*Tally
	totals   Tally
}

// NewLine creates a counting line between the two points.  Lines whose
// endpoints are within a few pixels of each other are rejected.
func NewLine(id int, p1, p2 image.Point) (*Line, error) {

	if abs(p1.X-p2.X) < minSeparation && abs(p1.Y-p2.Y) < minSeparation {
		return nil, ErrDegenerateLine
	}

	l := &Line{
		id:       id,
		p1:       p1,
		p2:       p2,
		states:   make(map[int]sideState),
		perClass: make(map[string]*Tally),
	}

	for _, name := range vehiclecount.ClassNames() {
		l.perClass[name] = &Tally{}
	}

	return l, nil
}

// ID returns the line's sequential ID
func (l *Line) ID() int {
	return l.id
}

// Endpoints returns the two points defining the line
func (l *Line) Endpoints() (image.Point, image.Point) {
	return l.p1, l.p2
}

// Side determines which side of the line the point is on using the sign of
// the 2D cross product.  Returns +1, -1 or 0 when the point lies exactly
// on the line.
func (l *Line) Side(pt image.Point) int {

	cross := (l.p2.X-l.p1.X)*(pt.Y-l.p1.Y) - (l.p2.Y-l.p1.Y)*(pt.X-l.p1.X)

	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

// Update checks every confirmed track against the line and returns the
// crossing events fired this frame.  A crossing fires only when a track's
// previously recorded side and its new side are both non zero and differ,
// so a center point landing exactly on the line never fires and moving off
// the line does not count as a crossing.  The new side is always stored.
func (l *Line) Update(tracks []postprocess.Detection) []Crossing {

	var crossings []Crossing

	for _, track := range tracks {

		if track.TrackID <= 0 {
			continue
		}

		side := l.Side(track.Box.Center())

		if prev, ok := l.states[track.TrackID]; ok {

			if side != prev.side && side != 0 && prev.side != 0 {

				direction := DirectionDown

				if side > prev.side {
					direction = DirectionUp
				}

				crossings = append(crossings, Crossing{
					Class:     track.ClassName,
					Direction: direction,
				})

				l.count(track.ClassName, direction)
			}
		}

		l.states[track.TrackID] = sideState{
			side:  side,
			class: track.ClassName,
		}
	}

	return crossings
}

// count increments the per class and total tallies for one crossing
func (l *Line) count(class string, direction Direction) {

	tally, ok := l.perClass[class]

	if !ok {
		tally = &Tally{}
		l.perClass[class] = tally
	}

	switch direction {
	case DirectionUp:
		tally.Up++
		l.totals.Up++
	case DirectionDown:
		tally.Down++
		l.totals.Down++
	}
}

// Forget drops the side state for a track that no longer exists.  Stale
// state is harmless but unbounded on long runs.
func (l *Line) Forget(trackID int) {
	delete(l.states, trackID)
}

// ResetCounts zeroes all tallies and forgets all side state.  Independent
// of any tracker reset.
func (l *Line) ResetCounts() {

	for _, tally := range l.perClass {
		*tally = Tally{}
	}

	l.totals = Tally{}
	l.states = make(map[int]sideState)
}

// Statistics returns a snapshot of the line's tallies
func (l *Line) Statistics() Statistics {

	perClass := make(map[string]Tally, len(l.perClass))

	for name, tally := range l.perClass {
		perClass[name] = *tally
	}

	return Statistics{
		LineID:          l.id,
		P1:              l.p1,
		P2:              l.p2,
		Crossings:       l.totals,
		PerClass:        perClass,
		TrackedVehicles: len(l.states),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
