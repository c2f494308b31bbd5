package tracker

import (
	"image"
	"sync"
)

// Trail keeps a bounded history of center points per track, used for
// drawing the path a vehicle has taken
type Trail struct {
	// size is the maximum number of most recent points to keep per track
	size int
	// history of tracked center points keyed by track ID
	history map[int][]image.Point
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size specifies the
// maximum length of trail to maintain per track, the oldest point is
// evicted once exceeded.
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int][]image.Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]image.Point)
}

// Add appends a track's current center point to its history
func (t *Trail) Add(trackID int, center image.Point) {
	t.Lock()
	defer t.Unlock()

	points := append(t.history[trackID], center)

	// drop oldest point once history is exceeded
	if len(points) > t.size {
		points = points[1:]
	}

	t.history[trackID] = points
}

// Remove drops the history for a track that has been removed
func (t *Trail) Remove(trackID int) {
	t.Lock()
	defer t.Unlock()

	delete(t.history, trackID)
}

// GetPoints gets the point history for a specific track ID
func (t *Trail) GetPoints(trackID int) []image.Point {
	t.Lock()
	defer t.Unlock()

	return t.history[trackID]
}
