package vehiclecount

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the tunable parameters of the frame processing pipeline
type Config struct {
	// InputWidth and InputHeight are the pixel dimensions of the detection
	// model's input tensor
	InputWidth  int `yaml:"input_width"`
	InputHeight int `yaml:"input_height"`
	// ConfThreshold is the minimum confidence score required for a candidate
	// box to be kept
	ConfThreshold float32 `yaml:"conf_threshold"`
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	NMSThreshold float32 `yaml:"nms_threshold"`
	// MinBoxArea is the minimum pixel area of a detection box, smaller
	// boxes are discarded as noise
	MinBoxArea int `yaml:"min_box_area"`
	// FrameSkip runs the full detection and matching step on every Nth
	// frame only, skipped frames re-emit the last confirmed tracks
	FrameSkip int `yaml:"frame_skip"`
	// MaxAge is the number of consecutive unmatched frames before a track
	// is removed
	MaxAge int `yaml:"max_age"`
	// MinHits is the number of matched frames before a track is confirmed
	// and emitted
	MinHits int `yaml:"min_hits"`
	// IoUThreshold is the minimum IoU between a track and a detection for
	// the two to be matched
	IoUThreshold float32 `yaml:"iou_threshold"`
	// TrailLength is the maximum number of recent center points kept per
	// track
	TrailLength int `yaml:"trail_length"`
}

// DefaultConfig returns a Config populated with the default values used
// for counting vehicles with a YOLOv5n model trained on COCO
func DefaultConfig() Config {
	return Config{
		InputWidth:    416,
		InputHeight:   416,
		ConfThreshold: 0.25,
		NMSThreshold:  0.5,
		MinBoxArea:    500,
		FrameSkip:     2,
		MaxAge:        1,
		MinHits:       3,
		IoUThreshold:  0.3,
		TrailLength:   20,
	}
}

// LoadConfig reads a YAML configuration file.  Options absent from the file
// keep their default values.
func LoadConfig(file string) (Config, error) {

	cfg := DefaultConfig()

	data, err := os.ReadFile(file)

	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the configuration values are usable
func (c Config) Validate() error {

	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("input dimensions must be positive, got %dx%d",
			c.InputWidth, c.InputHeight)
	}

	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("conf_threshold must be in [0,1], got %f",
			c.ConfThreshold)
	}

	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms_threshold must be in [0,1], got %f",
			c.NMSThreshold)
	}

	if c.MinBoxArea < 0 {
		return fmt.Errorf("min_box_area must not be negative, got %d",
			c.MinBoxArea)
	}

	if c.FrameSkip < 1 {
		return fmt.Errorf("frame_skip must be >= 1, got %d", c.FrameSkip)
	}

	if c.MaxAge < 0 {
		return fmt.Errorf("max_age must not be negative, got %d", c.MaxAge)
	}

	if c.MinHits < 1 {
		return fmt.Errorf("min_hits must be >= 1, got %d", c.MinHits)
	}

	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be in [0,1], got %f",
			c.IoUThreshold)
	}

	if c.TrailLength < 1 {
		return fmt.Errorf("trail_length must be >= 1, got %d", c.TrailLength)
	}

	return nil
}
