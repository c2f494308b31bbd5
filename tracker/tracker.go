// Package tracker implements a multi object tracker based on greedy IoU
// matching.  It assigns stable identities to per frame vehicle detections
// and manages track creation, confirmation, aging and removal.
package tracker

import (
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/mat"

	vehiclecount "github.com/unklbee/vc-yov5n-ver2"
	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// Params defines the tracker configuration
type Params struct {
	// MaxAge is the number of consecutive unmatched frames before a track
	// is removed
	MaxAge int
	// MinHits is the number of matched frames before a track is confirmed
	// and emitted
	MinHits int
	// IoUThreshold is the minimum IoU between a track box and a detection
	// box for the two to be matched
	IoUThreshold float32
	// TrailLength is the maximum number of recent center points kept per
	// track
	TrailLength int
}

// DefaultParams returns the default tracker parameters:
// - Max Age: 1
// - Min Hits: 3
// - IoU Threshold: 0.3
// - Trail Length: 20
func DefaultParams() Params {
	return ParamsFromConfig(vehiclecount.DefaultConfig())
}

// ParamsFromConfig returns Params populated from the given configuration
func ParamsFromConfig(cfg vehiclecount.Config) Params {
	return Params{
		MaxAge:       cfg.MaxAge,
		MinHits:      cfg.MinHits,
		IoUThreshold: cfg.IoUThreshold,
		TrailLength:  cfg.TrailLength,
	}
}

// IoUTracker matches detections to existing tracks by repeatedly taking
// the highest IoU pair at or above the threshold.  Not safe for concurrent
// use, all calls must come from the one goroutine driving Update.
type IoUTracker struct {
	params Params

	tracks map[int]*Track
	// nextID provides track ID's, monotonically increasing and never
	// reused within a session
	nextID int

	trail *Trail

	// lastConfirmed is re-emitted by the pipeline on skipped frames
	lastConfirmed []postprocess.Detection

	// onRemove hooks are called with the track ID whenever a track ages
	// out, used to garbage collect per track state held elsewhere
	onRemove []func(trackID int)
}

// NewIoUTracker returns a tracker with the given parameters
func NewIoUTracker(p Params) *IoUTracker {
	return &IoUTracker{
		params: p,
		tracks: make(map[int]*Track),
		nextID: 1,
		trail:  NewTrail(p.TrailLength),
	}
}

// Update ages existing tracks, matches the frame's detections to them and
// returns the confirmed tracks tagged with their track ID
func (tk *IoUTracker) Update(dets []postprocess.Detection) []postprocess.Detection {

	tk.ageTracks()

	if len(dets) > 0 {
		if len(tk.tracks) == 0 {
			for _, det := range dets {
				tk.createTrack(det)
			}
		} else {
			tk.matchDetections(dets)
		}
	}

	tk.lastConfirmed = tk.confirmedTracks()

	return tk.lastConfirmed
}

// LastConfirmed returns the confirmed tracks from the most recent Update
// call without performing any tracking work
func (tk *IoUTracker) LastConfirmed() []postprocess.Detection {
	return tk.lastConfirmed
}

// Trail returns the recent center point history for a track
func (tk *IoUTracker) Trail(trackID int) []image.Point {
	return tk.trail.GetPoints(trackID)
}

// Trails returns the trail history for all tracks, used for rendering
func (tk *IoUTracker) Trails() *Trail {
	return tk.trail
}

// OnRemove registers a hook called with the track ID whenever a track is
// removed
func (tk *IoUTracker) OnRemove(fn func(trackID int)) {
	tk.onRemove = append(tk.onRemove, fn)
}

// ActiveCount returns the current number of tracks, confirmed or not
func (tk *IoUTracker) ActiveCount() int {
	return len(tk.tracks)
}

// ConfirmedCount returns the number of confirmed tracks
func (tk *IoUTracker) ConfirmedCount() int {

	count := 0

	for _, track := range tk.tracks {
		if track.hits >= tk.params.MinHits {
			count++
		}
	}

	return count
}

// Reset clears all tracks and trails and restarts the ID counter at 1.
// Used when the user clears all annotations or changes video source.
func (tk *IoUTracker) Reset() {
	tk.tracks = make(map[int]*Track)
	tk.nextID = 1
	tk.trail.Reset()
	tk.lastConfirmed = nil
}

// ageTracks increments the age of every track and removes those unmatched
// for longer than MaxAge
func (tk *IoUTracker) ageTracks() {

	for id, track := range tk.tracks {

		track.age++

		if track.age > tk.params.MaxAge {
			delete(tk.tracks, id)
			tk.trail.Remove(id)

			for _, fn := range tk.onRemove {
				fn(id)
			}
		}
	}
}

// matchDetections assigns detections to existing tracks by greedy maximum
// IoU.  The full pairwise IoU matrix is computed, then the highest cell at
// or above the threshold is taken repeatedly, zeroing its row and column so
// neither side is reconsidered.  Unassigned detections spawn new tracks.
func (tk *IoUTracker) matchDetections(dets []postprocess.Detection) {

	// sorted ID's keep matrix rows and tie breaks deterministic
	ids := make([]int, 0, len(tk.tracks))

	for id := range tk.tracks {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	iou := mat.NewDense(len(ids), len(dets), nil)

	for i, id := range ids {
		for j, det := range dets {
			iou.Set(i, j, float64(postprocess.IoU(tk.tracks[id].det.Box, det.Box)))
		}
	}

	assigned := make([]bool, len(dets))

	for {

		// find the single highest remaining cell
		best := 0.0
		bi, bj := -1, -1

		for i := 0; i < len(ids); i++ {
			for j := 0; j < len(dets); j++ {
				if v := iou.At(i, j); v > best {
					best = v
					bi = i
					bj = j
				}
			}
		}

		if bi < 0 || best < float64(tk.params.IoUThreshold) {
			break
		}

		track, ok := tk.tracks[ids[bi]]

		if !ok {
			// the ID list was built from the map moments ago
			panic(fmt.Sprintf("tracker: matched track %d missing from track map", ids[bi]))
		}

		track.update(dets[bj])
		tk.trail.Add(track.id, track.det.Box.Center())
		assigned[bj] = true

		// remove the matched pair from consideration
		for j := 0; j < len(dets); j++ {
			iou.Set(bi, j, 0)
		}

		for i := 0; i < len(ids); i++ {
			iou.Set(i, bj, 0)
		}
	}

	for j, det := range dets {
		if !assigned[j] {
			tk.createTrack(det)
		}
	}
}

// createTrack spawns a new track for an unmatched detection
func (tk *IoUTracker) createTrack(det postprocess.Detection) {

	track := newTrack(tk.nextID, det)
	tk.tracks[track.id] = track
	tk.nextID++

	tk.trail.Add(track.id, track.det.Box.Center())
}

// confirmedTracks returns the detections of tracks with enough hits, in
// track ID order
func (tk *IoUTracker) confirmedTracks() []postprocess.Detection {

	ids := make([]int, 0, len(tk.tracks))

	for id, track := range tk.tracks {
		if track.hits >= tk.params.MinHits {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)

	confirmed := make([]postprocess.Detection, 0, len(ids))

	for _, id := range ids {
		confirmed = append(confirmed, tk.tracks[id].det)
	}

	return confirmed
}
