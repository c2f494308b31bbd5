package tracker

import (
	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// Track represents a single tracked vehicle identity persisting across
// frames
type Track struct {
	id int
	// det is the last matched detection
	det postprocess.Detection
	// age is the number of frames since the last successful match
	age int
	// hits is the number of frames matched since creation
	hits int
}

// newTrack creates a track for a detection that did not match any existing
// track
func newTrack(id int, det postprocess.Detection) *Track {
	det.TrackID = id
	return &Track{
		id:   id,
		det:  det,
		hits: 1,
	}
}

// update replaces the track's detection with the new match, resets its age
// and increments the hit count
func (t *Track) update(det postprocess.Detection) {
	det.TrackID = t.id
	t.det = det
	t.age = 0
	t.hits++
}

// ID returns the unique track ID.  ID's are monotonically increasing and
// never reused within a session.
func (t *Track) ID() int {
	return t.id
}

// Detection returns the last matched detection, tagged with the track ID
func (t *Track) Detection() postprocess.Detection {
	return t.det
}

// Age returns the number of frames since the track was last matched
func (t *Track) Age() int {
	return t.age
}

// Hits returns the number of frames the track has been matched
func (t *Track) Hits() int {
	return t.hits
}
