package postprocess

import (
	"sort"

	vehiclecount "github.com/unklbee/vc-yov5n-ver2"
)

// YOLOv5 defines the struct for YOLOv5 model inference post processing.
// It decodes the raw output tensor into candidate boxes then applies the
// confidence, class and minimum area filters followed by Non-Maximum
// Suppression to produce the final vehicle detections for a frame.
type YOLOv5 struct {
	// Params are the post processing configuration parameters
	Params YOLOv5Params
}

// YOLOv5Params defines the struct containing the YOLOv5 parameters to use
// for post processing operations
type YOLOv5Params struct {
	// ConfThreshold is the minimum objectness score required for a candidate
	// box to be considered for processing
	ConfThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	NMSThreshold float32
	// MinBoxArea is the minimum pixel area a detection box must cover in
	// frame space, smaller boxes are discarded as noise
	MinBoxArea int
	// InputWidth and InputHeight are the pixel dimensions of the model input
	// tensor, used to scale boxes back to frame space
	InputWidth  int
	InputHeight int
}

// YOLOv5VehicleParams returns an instance of YOLOv5Params configured with
// default values for counting vehicles:
// - Confidence Threshold: 0.25
// - NMS Threshold: 0.5
// - Minimum Box Area: 500 pixels
// - Model Input Size: 416x416
func YOLOv5VehicleParams() YOLOv5Params {
	return ParamsFromConfig(vehiclecount.DefaultConfig())
}

// ParamsFromConfig returns YOLOv5Params populated from the given
// configuration
func ParamsFromConfig(cfg vehiclecount.Config) YOLOv5Params {
	return YOLOv5Params{
		ConfThreshold: cfg.ConfThreshold,
		NMSThreshold:  cfg.NMSThreshold,
		MinBoxArea:    cfg.MinBoxArea,
		InputWidth:    cfg.InputWidth,
		InputHeight:   cfg.InputHeight,
	}
}

// NewYOLOv5 returns an instance of the YOLOv5 post processor
func NewYOLOv5(p YOLOv5Params) *YOLOv5 {
	return &YOLOv5{
		Params: p,
	}
}

// Candidate is a decoded candidate box in model input space, before any
// filtering has been applied
type Candidate struct {
	// X, Y are the box center coordinates
	X, Y float32
	// W, H are the box width and height
	W, H float32
	// Confidence is the objectness score
	Confidence float32
	// Class is the arg-max class ID over the per class scores
	Class int
}

// DecodeBoxes turns the raw detection tensor into candidate boxes.  A
// malformed or zero row tensor yields an empty slice, never an error.
func (y *YOLOv5) DecodeBoxes(t Tensor) []Candidate {

	if !t.Valid() {
		return nil
	}

	cands := make([]Candidate, 0, t.Rows())

	for i := 0; i < t.Rows(); i++ {

		row := t.Row(i)

		// arg-max over the per class scores
		maxClassID := 0
		maxClassProb := row[5]

		for k := 6; k < t.Cols; k++ {
			if row[k] > maxClassProb {
				maxClassID = k - 5
				maxClassProb = row[k]
			}
		}

		cands = append(cands, Candidate{
			X:          row[0],
			Y:          row[1],
			W:          row[2],
			H:          row[3],
			Confidence: row[4],
			Class:      maxClassID,
		})
	}

	return cands
}

// DetectVehicles runs the full post processing chain on a raw detection
// tensor and returns the vehicle detections for the frame in frame pixel
// coordinates.  frameWidth and frameHeight are the dimensions of the source
// video frame.
func (y *YOLOv5) DetectVehicles(t Tensor, frameWidth, frameHeight int) []Detection {

	cands := y.DecodeBoxes(t)

	dets := y.filterCandidates(cands, frameWidth, frameHeight)

	return y.nms(dets)
}

// filterCandidates applies the confidence threshold, vehicle class filter,
// scales boxes from model input space to frame space and drops boxes below
// the minimum area
func (y *YOLOv5) filterCandidates(cands []Candidate,
	frameWidth, frameHeight int) []Detection {

	wScale := float32(frameWidth) / float32(y.Params.InputWidth)
	hScale := float32(frameHeight) / float32(y.Params.InputHeight)

	dets := make([]Detection, 0, len(cands))

	for _, c := range cands {

		if c.Confidence <= y.Params.ConfThreshold {
			continue
		}

		name, ok := vehiclecount.ClassName(c.Class)

		if !ok {
			continue
		}

		// convert center form to corner form and scale to frame pixels
		x1 := clampi(int((c.X-c.W/2)*wScale), 0, frameWidth-1)
		y1 := clampi(int((c.Y-c.H/2)*hScale), 0, frameHeight-1)
		x2 := clampi(int((c.X+c.W/2)*wScale), 0, frameWidth-1)
		y2 := clampi(int((c.Y+c.H/2)*hScale), 0, frameHeight-1)

		box := BoxRect{Left: x1, Top: y1, Right: x2, Bottom: y2}

		if box.Area() < y.Params.MinBoxArea {
			continue
		}

		dets = append(dets, Detection{
			Box:        box,
			Class:      c.Class,
			ClassName:  name,
			Confidence: c.Confidence,
		})
	}

	return dets
}

// nms runs greedy Non-Maximum Suppression over the detections.  Boxes are
// taken in descending confidence order, the stable sort keeps the original
// order for equal scores.
func (y *YOLOv5) nms(dets []Detection) []Detection {

	if len(dets) <= 1 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	keep := make([]Detection, 0, len(dets))
	removed := make([]bool, len(dets))

	for i := 0; i < len(dets); i++ {

		if removed[i] {
			continue
		}

		keep = append(keep, dets[i])

		for j := i + 1; j < len(dets); j++ {

			if removed[j] {
				continue
			}

			if IoU(dets[i].Box, dets[j].Box) >= y.Params.NMSThreshold {
				removed[j] = true
			}
		}
	}

	return keep
}
