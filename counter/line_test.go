package counter

import (
	"errors"
	"image"
	"testing"

	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// trackAt returns a confirmed car track whose box center is at x,y
func trackAt(trackID, x, y int) postprocess.Detection {
	return postprocess.Detection{
		Box: postprocess.BoxRect{
			Left: x - 40, Top: y - 40, Right: x + 40, Bottom: y + 40,
		},
		Class:      2,
		ClassName:  "car",
		Confidence: 0.9,
		TrackID:    trackID,
	}
}

// horizontal returns a counting line from (0,200) to (500,200)
func horizontal(t *testing.T) *Line {
	t.Helper()

	l, err := NewLine(0, image.Pt(0, 200), image.Pt(500, 200))

	if err != nil {
		t.Fatalf("NewLine failed: %v", err)
	}

	return l
}

func TestNewLineValidation(t *testing.T) {

	tests := []struct {
		name    string
		p1, p2  image.Point
		wantErr error
	}{
		{"identical points", image.Pt(100, 100), image.Pt(100, 100), ErrDegenerateLine},
		{"points too close", image.Pt(100, 100), image.Pt(103, 103), ErrDegenerateLine},
		{"close in x only", image.Pt(100, 100), image.Pt(103, 150), nil},
		{"valid line", image.Pt(0, 200), image.Pt(500, 200), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {

			_, err := NewLine(0, tt.p1, tt.p2)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSide(t *testing.T) {

	l := horizontal(t)

	tests := []struct {
		name string
		pt   image.Point
		want int
	}{
		{"below the line", image.Pt(100, 300), 1},
		{"above the line", image.Pt(100, 100), -1},
		{"exactly on the line", image.Pt(100, 200), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Side(tt.pt); got != tt.want {
				t.Errorf("Side(%v) = %d, want %d", tt.pt, got, tt.want)
			}
		})
	}
}

// TestSingleCrossing moves one track across the line over two frames and
// expects exactly one crossing event
func TestSingleCrossing(t *testing.T) {

	l := horizontal(t)

	if events := l.Update([]postprocess.Detection{trackAt(1, 100, 100)}); len(events) != 0 {
		t.Fatalf("first observation fired %d events, want 0", len(events))
	}

	events := l.Update([]postprocess.Detection{trackAt(1, 100, 300)})

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	if events[0].Class != "car" || events[0].Direction != DirectionUp {
		t.Errorf("got event %+v, want car crossing up", events[0])
	}

	stats := l.Statistics()

	if stats.PerClass["car"].Up != 1 || stats.Crossings.Total() != 1 {
		t.Errorf("tally not incremented: %+v", stats)
	}

	// staying on the same side fires nothing further
	if events := l.Update([]postprocess.Detection{trackAt(1, 100, 320)}); len(events) != 0 {
		t.Errorf("same side frame fired %d events", len(events))
	}
}

// TestCrossingSymmetry checks a track crossing and returning fires one
// event in each direction
func TestCrossingSymmetry(t *testing.T) {

	l := horizontal(t)

	l.Update([]postprocess.Detection{trackAt(1, 100, 300)})

	events := l.Update([]postprocess.Detection{trackAt(1, 100, 100)})

	if len(events) != 1 || events[0].Direction != DirectionDown {
		t.Fatalf("got %+v, want one down crossing", events)
	}

	events = l.Update([]postprocess.Detection{trackAt(1, 100, 300)})

	if len(events) != 1 || events[0].Direction != DirectionUp {
		t.Fatalf("got %+v, want one up crossing", events)
	}

	stats := l.Statistics()

	if stats.Crossings.Up != 1 || stats.Crossings.Down != 1 {
		t.Errorf("got tallies %+v, want one in each direction", stats.Crossings)
	}
}

// TestOnLineNeverFires checks the zero side guards: landing exactly on the
// line fires nothing, and moving off the line afterwards is not a crossing
func TestOnLineNeverFires(t *testing.T) {

	l := horizontal(t)

	l.Update([]postprocess.Detection{trackAt(1, 100, 100)})

	// center exactly on the line
	if events := l.Update([]postprocess.Detection{trackAt(1, 100, 200)}); len(events) != 0 {
		t.Fatalf("on-line frame fired %d events", len(events))
	}

	// zero went into the stored state, so zero to signed is not a crossing
	if events := l.Update([]postprocess.Detection{trackAt(1, 100, 300)}); len(events) != 0 {
		t.Fatalf("zero to signed transition fired %d events", len(events))
	}

	if l.Statistics().Crossings.Total() != 0 {
		t.Error("tally changed without a signed side flip")
	}
}

func TestUpdateSkipsUntrackedDetections(t *testing.T) {

	l := horizontal(t)

	// a detection without a track ID never participates
	l.Update([]postprocess.Detection{trackAt(0, 100, 100)})
	events := l.Update([]postprocess.Detection{trackAt(0, 100, 300)})

	if len(events) != 0 {
		t.Fatalf("untracked detection fired %d events", len(events))
	}

	if l.Statistics().TrackedVehicles != 0 {
		t.Error("untracked detection left side state behind")
	}
}

func TestForget(t *testing.T) {

	l := horizontal(t)

	l.Update([]postprocess.Detection{trackAt(1, 100, 100)})
	l.Forget(1)

	if l.Statistics().TrackedVehicles != 0 {
		t.Fatal("side state survived Forget")
	}

	// with no prior state the next observation cannot fire
	if events := l.Update([]postprocess.Detection{trackAt(1, 100, 300)}); len(events) != 0 {
		t.Errorf("forgotten track fired %d events", len(events))
	}
}

func TestResetCounts(t *testing.T) {

	l := horizontal(t)

	l.Update([]postprocess.Detection{trackAt(1, 100, 100)})
	l.Update([]postprocess.Detection{trackAt(1, 100, 300)})

	l.ResetCounts()

	stats := l.Statistics()

	if stats.Crossings.Total() != 0 || stats.TrackedVehicles != 0 {
		t.Errorf("state survived reset: %+v", stats)
	}

	// all vehicle classes remain present at zero
	for _, name := range []string{"car", "motorcycle", "bus", "truck"} {
		if tally, ok := stats.PerClass[name]; !ok || tally.Total() != 0 {
			t.Errorf("class %s tally = %+v after reset", name, tally)
		}
	}
}
