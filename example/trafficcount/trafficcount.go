package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	vehiclecount "github.com/unklbee/vc-yov5n-ver2"
	"github.com/unklbee/vc-yov5n-ver2/pipeline"
	"github.com/unklbee/vc-yov5n-ver2/postprocess"
	"github.com/unklbee/vc-yov5n-ver2/render"
)

var (
	// FPS is the number of FPS to simulate
	FPS         = int64(30)
	FPSinterval = time.Duration(float64(time.Second) / float64(FPS))
)

// ResultFrame is a struct to wrap the gocv byte buffer and error result
type ResultFrame struct {
	Buf *gocv.NativeByteBuffer
	Err error
}

// Demo defines the struct for running the vehicle counting demo.  Raw
// detection tensors come from a recorded per frame JSON file so the demo
// replays a traffic video with its model outputs without needing the
// inference hardware.  Supports a single stream client.
type Demo struct {
	// vidBuffer buffers the video frames into memory
	vidBuffer []gocv.Mat
	// tensors holds the recorded detection tensor for each video frame
	tensors []postprocess.Tensor
	// pipe runs detection filtering, tracking and counting per frame
	pipe *pipeline.Pipeline
	// runner drives the pipeline from its worker goroutine
	runner *pipeline.Runner

	cfg    vehiclecount.Config
	logger *zap.Logger
	font   render.Font
}

// NewDemo returns an instance of Demo, a streaming HTTP server showing
// video with vehicle tracking and counting
func NewDemo(vidFile, detFile string, cfg vehiclecount.Config,
	logger *zap.Logger) (*Demo, error) {

	d := &Demo{
		cfg:    cfg,
		logger: logger,
		font:   render.DefaultFont(),
	}

	err := d.bufferVideo(vidFile)

	if err != nil {
		return nil, fmt.Errorf("Error buffering video: %w", err)
	}

	err = d.loadDetections(detFile)

	if err != nil {
		return nil, fmt.Errorf("Error loading detections: %w", err)
	}

	if len(d.tensors) < len(d.vidBuffer) {
		return nil, fmt.Errorf("detections file has %d frames, video has %d",
			len(d.tensors), len(d.vidBuffer))
	}

	d.pipe, err = pipeline.New(cfg, logger)

	if err != nil {
		return nil, fmt.Errorf("Error creating pipeline: %w", err)
	}

	d.runner = pipeline.NewRunner(d.pipe, int(FPS))

	return d, nil
}

// bufferVideo reads in the video frames and saves them to a buffer
func (d *Demo) bufferVideo(vidFile string) error {

	// open handle to read frames of video file
	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		return err
	}

	defer video.Close()

	d.vidBuffer = make([]gocv.Mat, 0)

	for {
		img := gocv.NewMat()

		// read the next frame from the video
		if ok := video.Read(&img); !ok {
			// reached last video frame
			break
		}

		// Check if the frame is empty
		if img.Empty() {
			continue
		}

		// push frame onto buffer
		d.vidBuffer = append(d.vidBuffer, img)
	}

	if len(d.vidBuffer) == 0 {
		return fmt.Errorf("video file contains no frames")
	}

	return nil
}

// loadDetections reads the recorded per frame detection tensors.  The JSON
// file holds one row list per video frame, each row being the model's
// [cx, cy, w, h, conf, class scores...] output values.
func (d *Demo) loadDetections(detFile string) error {

	data, err := os.ReadFile(detFile)

	if err != nil {
		return err
	}

	var frames [][][]float32

	if err := json.Unmarshal(data, &frames); err != nil {
		return fmt.Errorf("parsing detections JSON: %w", err)
	}

	d.tensors = make([]postprocess.Tensor, 0, len(frames))

	for i, rows := range frames {

		cols := 0

		if len(rows) > 0 {
			cols = len(rows[0])
		}

		flat := make([]float32, 0, len(rows)*cols)

		for _, row := range rows {
			if len(row) != cols {
				return fmt.Errorf("frame %d has ragged rows", i)
			}
			flat = append(flat, row...)
		}

		d.tensors = append(d.tensors, postprocess.NewTensor(flat, cols))
	}

	return nil
}

// Stream is the HTTP handler function used to stream video frames to browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	d.logger.Info("new client connection established")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	// pointer to position in video buffer
	frameNum := -1

	// frame numbers submitted to the runner and awaiting results, the
	// runner returns results in submission order
	pending := make([]int, 0, 4)

	// used for calculating FPS
	frameCount := 0
	startTime := time.Now()
	fps := float64(0)

	ticker := time.NewTicker(FPSinterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-r.Context().Done():
			d.logger.Info("client disconnected")
			break loop

		// simulate reading 30FPS web camera
		case <-ticker.C:

			// increment pointer to next image in the video buffer
			frameNum++
			if frameNum > len(d.vidBuffer)-1 {
				frameNum = 0
			}

			frame := pipeline.Frame{
				Tensor: d.tensors[frameNum],
				Width:  d.vidBuffer[frameNum].Cols(),
				Height: d.vidBuffer[frameNum].Rows(),
			}

			if !d.runner.Submit(r.Context(), frame) {
				break loop
			}

			pending = append(pending, frameNum)

		case res, ok := <-d.runner.Results():

			if !ok {
				break loop
			}

			srcNum := pending[0]
			pending = pending[1:]

			buf := d.renderFrame(d.vidBuffer[srcNum], res, fps)

			if buf.Err != nil {
				d.logger.Error("rendering frame failed", zap.Error(buf.Err))

			} else {
				// Write the image to the response writer
				w.Write([]byte("--frame\r\n"))
				w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
				w.Write(buf.Buf.GetBytes())
				w.Write([]byte("\r\n"))

				// Flush the buffer
				flusher, ok := w.(http.Flusher)
				if ok {
					flusher.Flush()
				}

				buf.Buf.Close()
			}

			// calculate FPS
			frameCount++
			elapsed := time.Since(startTime).Seconds()

			if elapsed >= 1.0 {
				fps = float64(frameCount) / elapsed
				frameCount = 0
				startTime = time.Now()
			}
		}
	}
}

// renderFrame annotates a copy of the source frame with the pipeline result
// and returns it encoded as a JPG file
func (d *Demo) renderFrame(img gocv.Mat, res pipeline.Result,
	fps float64) ResultFrame {

	resImg := gocv.NewMat()
	defer resImg.Close()

	// copy the source image and annotate the copy
	img.CopyTo(&resImg)

	if region := d.pipe.Region(); region != nil {
		render.Region(&resImg, region.Points(), 1)
	}

	render.CountLines(&resImg, d.pipe.Statistics(), d.font, 2)
	render.TrackedBoxes(&resImg, res.Tracks, d.font, 2)
	render.Trail(&resImg, res.Tracks, d.pipe.Tracker().Trails(),
		render.DefaultTrailStyle())
	render.Stats(&resImg, vehiclecount.ClassNames(), d.pipe.VehicleCounts(),
		d.font)

	// add FPS and frame number to top right of image
	text := fmt.Sprintf("Frame: %d, FPS: %.2f", res.FrameIndex, fps)
	gocv.PutText(&resImg, text, image.Pt(resImg.Cols()-280, 14),
		gocv.FontHersheyDuplex, 0.5, render.Red, 1)

	// Encode the image to JPEG format
	buf, err := gocv.IMEncode(".jpg", resImg)

	return ResultFrame{
		Buf: buf,
		Err: err,
	}
}

// parseLines parses the counting lines flag, a semicolon delimited list of
// x1,y1,x2,y2 coordinate sets, eg: "0,300,640,300;0,400,640,400"
func parseLines(spec string) ([][2]image.Point, error) {

	lines := make([][2]image.Point, 0)

	for _, part := range strings.Split(spec, ";") {

		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		vals, err := parseInts(part, 4)

		if err != nil {
			return nil, fmt.Errorf("line %q: %w", part, err)
		}

		lines = append(lines, [2]image.Point{
			image.Pt(vals[0], vals[1]),
			image.Pt(vals[2], vals[3]),
		})
	}

	return lines, nil
}

// parseRegion parses the region of interest flag, a semicolon delimited
// list of x,y polygon vertices, eg: "0,200;640,200;640,480;0,480"
func parseRegion(spec string) ([]image.Point, error) {

	points := make([]image.Point, 0)

	for _, part := range strings.Split(spec, ";") {

		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		vals, err := parseInts(part, 2)

		if err != nil {
			return nil, fmt.Errorf("point %q: %w", part, err)
		}

		points = append(points, image.Pt(vals[0], vals[1]))
	}

	return points, nil
}

// parseInts parses a comma delimited list of exactly n integers
func parseInts(spec string, n int) ([]int, error) {

	parts := strings.Split(spec, ",")

	if len(parts) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(parts))
	}

	vals := make([]int, n)

	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))

		if err != nil {
			return nil, err
		}

		vals[i] = v
	}

	return vals, nil
}

func main() {

	// read in cli flags
	vidFile := flag.String("v", "../data/traffic.mp4", "Video file to run vehicle counting on")
	detFile := flag.String("d", "../data/traffic-dets.json", "JSON file of recorded per frame detection tensors")
	cfgFile := flag.String("c", "", "YAML config file, defaults used when not given")
	lineSpec := flag.String("l", "0,300,640,300", "Counting lines as semicolon delimited x1,y1,x2,y2 sets")
	roiSpec := flag.String("r", "", "Region of interest polygon as semicolon delimited x,y vertices")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")
	frameSkip := flag.Int("s", 0, "Run detection every Nth frame, 0 uses the config value")

	flag.Parse()

	logger, err := zap.NewDevelopment()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer logger.Sync()

	cfg := vehiclecount.DefaultConfig()

	if *cfgFile != "" {
		cfg, err = vehiclecount.LoadConfig(*cfgFile)

		if err != nil {
			logger.Fatal("loading config failed", zap.Error(err))
		}
	}

	demo, err := NewDemo(*vidFile, *detFile, cfg, logger)

	if err != nil {
		logger.Fatal("creating demo failed", zap.Error(err))
	}

	if *frameSkip > 0 {
		demo.pipe.SetFrameSkip(*frameSkip)
	}

	lines, err := parseLines(*lineSpec)

	if err != nil {
		logger.Fatal("parsing counting lines failed", zap.Error(err))
	}

	for _, line := range lines {
		if _, err := demo.pipe.AddLine(line[0], line[1]); err != nil {
			logger.Fatal("adding counting line failed", zap.Error(err))
		}
	}

	if *roiSpec != "" {
		points, err := parseRegion(*roiSpec)

		if err != nil {
			logger.Fatal("parsing region failed", zap.Error(err))
		}

		width := demo.vidBuffer[0].Cols()
		height := demo.vidBuffer[0].Rows()

		if err := demo.pipe.SetRegion(points, width, height); err != nil {
			logger.Fatal("setting region failed", zap.Error(err))
		}
	}

	demo.runner.Start(context.Background())

	http.HandleFunc("/stream", demo.Stream)

	// start http server
	logger.Info("open browser and view video",
		zap.String("url", fmt.Sprintf("http://%s/stream", *httpAddr)))

	if err := http.ListenAndServe(*httpAddr, nil); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
