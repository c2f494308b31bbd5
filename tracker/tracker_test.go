package tracker

import (
	"image"
	"testing"

	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// det returns a car detection with the given corner form box
func det(x1, y1, x2, y2 int) postprocess.Detection {
	return postprocess.Detection{
		Box:        postprocess.BoxRect{Left: x1, Top: y1, Right: x2, Bottom: y2},
		Class:      2,
		ClassName:  "car",
		Confidence: 0.9,
	}
}

func TestTrackerConfirmation(t *testing.T) {

	tk := NewIoUTracker(DefaultParams())

	// frames of a single slowly moving box, confirmation needs MinHits
	// matched frames
	frames := [][]postprocess.Detection{
		{det(100, 100, 200, 200)},
		{det(105, 100, 205, 200)},
		{det(110, 100, 210, 200)},
	}

	for i, dets := range frames[:2] {
		if confirmed := tk.Update(dets); len(confirmed) != 0 {
			t.Fatalf("frame %d: got %d confirmed tracks before MinHits reached",
				i, len(confirmed))
		}
	}

	confirmed := tk.Update(frames[2])

	if len(confirmed) != 1 {
		t.Fatalf("got %d confirmed tracks, want 1", len(confirmed))
	}

	if confirmed[0].TrackID != 1 {
		t.Errorf("got track ID %d, want 1", confirmed[0].TrackID)
	}

	if confirmed[0].Box != frames[2][0].Box {
		t.Errorf("confirmed track carries box %+v, want latest %+v",
			confirmed[0].Box, frames[2][0].Box)
	}
}

func TestTrackerIdentityContinuity(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	// two vehicles moving in opposite directions
	first := tk.Update([]postprocess.Detection{
		det(100, 100, 200, 200),
		det(400, 100, 500, 200),
	})

	if len(first) != 2 {
		t.Fatalf("got %d tracks, want 2", len(first))
	}

	second := tk.Update([]postprocess.Detection{
		det(410, 100, 510, 200), // second vehicle listed first
		det(90, 100, 190, 200),
	})

	if len(second) != 2 {
		t.Fatalf("got %d tracks, want 2", len(second))
	}

	// output is in track ID order so track 1 stays the left vehicle
	if second[0].TrackID != 1 || second[0].Box.Left != 90 {
		t.Errorf("track 1 box %+v, want the left vehicle", second[0].Box)
	}

	if second[1].TrackID != 2 || second[1].Box.Left != 410 {
		t.Errorf("track 2 box %+v, want the right vehicle", second[1].Box)
	}
}

func TestTrackerGreedyMatchPrefersHighestIoU(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.1, TrailLength: 20})

	tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	// both detections overlap track 1, the closer one must win and the
	// other spawns a new track
	out := tk.Update([]postprocess.Detection{
		det(160, 100, 260, 200),
		det(105, 100, 205, 200),
	})

	if len(out) != 2 {
		t.Fatalf("got %d tracks, want 2", len(out))
	}

	if out[0].TrackID != 1 || out[0].Box.Left != 105 {
		t.Errorf("track 1 matched box %+v, want the higher IoU box at 105",
			out[0].Box)
	}

	if out[1].TrackID != 2 || out[1].Box.Left != 160 {
		t.Errorf("track 2 box %+v, want the new box at 160", out[1].Box)
	}
}

func TestTrackerAgingRemoval(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	removed := make([]int, 0)
	tk.OnRemove(func(id int) { removed = append(removed, id) })

	tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	// first unmatched frame ages the track to MaxAge, it survives
	tk.Update(nil)

	if tk.ActiveCount() != 1 {
		t.Fatalf("track removed after one unmatched frame, want kept at age 1")
	}

	// second unmatched frame exceeds MaxAge
	tk.Update(nil)

	if tk.ActiveCount() != 0 {
		t.Fatal("track not removed after exceeding MaxAge")
	}

	if len(removed) != 1 || removed[0] != 1 {
		t.Errorf("removal hook got %v, want [1]", removed)
	}
}

// TestTrackerIDMonotonicity checks ID's are never reused even after their
// track is removed
func TestTrackerIDMonotonicity(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 0, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	out := tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	if out[0].TrackID != 1 {
		t.Fatalf("got first track ID %d, want 1", out[0].TrackID)
	}

	// MaxAge 0 drops the track immediately, a detection in the same place
	// must get a fresh ID
	out = tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	if out[0].TrackID != 2 {
		t.Errorf("got track ID %d after removal, want fresh ID 2", out[0].TrackID)
	}

	out = tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	if out[0].TrackID != 3 {
		t.Errorf("got track ID %d, want 3", out[0].TrackID)
	}
}

func TestTrackerLastConfirmed(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	out := tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	last := tk.LastConfirmed()

	if len(last) != len(out) || last[0].TrackID != out[0].TrackID {
		t.Errorf("LastConfirmed %+v does not match Update output %+v", last, out)
	}
}

func TestTrackerReset(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})
	tk.Reset()

	if tk.ActiveCount() != 0 {
		t.Fatal("tracks survived reset")
	}

	if tk.LastConfirmed() != nil {
		t.Fatal("last confirmed output survived reset")
	}

	// ID counter restarts at 1
	out := tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})

	if out[0].TrackID != 1 {
		t.Errorf("got track ID %d after reset, want 1", out[0].TrackID)
	}
}

func TestTrailBounded(t *testing.T) {

	trail := NewTrail(3)

	for i := 0; i < 5; i++ {
		trail.Add(1, image.Pt(i, i))
	}

	points := trail.GetPoints(1)

	if len(points) != 3 {
		t.Fatalf("got %d points, want capped at 3", len(points))
	}

	// oldest points evicted first
	if points[0] != image.Pt(2, 2) || points[2] != image.Pt(4, 4) {
		t.Errorf("got points %v, want the 3 most recent", points)
	}

	trail.Remove(1)

	if trail.GetPoints(1) != nil {
		t.Error("points survived removal")
	}
}

func TestTrackerTrailFollowsTrack(t *testing.T) {

	tk := NewIoUTracker(Params{MaxAge: 1, MinHits: 1, IoUThreshold: 0.3, TrailLength: 20})

	tk.Update([]postprocess.Detection{det(100, 100, 200, 200)})
	tk.Update([]postprocess.Detection{det(110, 100, 210, 200)})

	points := tk.Trail(1)

	if len(points) != 2 {
		t.Fatalf("got %d trail points, want 2", len(points))
	}

	if points[0] != image.Pt(150, 150) || points[1] != image.Pt(160, 150) {
		t.Errorf("got trail %v, want centers of the two boxes", points)
	}
}
