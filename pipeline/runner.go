package pipeline

import (
	"context"
	"sync"

	"github.com/unklbee/vc-yov5n-ver2/postprocess"
)

// Frame is one unit of work for the Runner: a raw detection tensor from the
// external inference call plus the source frame's pixel dimensions
type Frame struct {
	Tensor postprocess.Tensor
	Width  int
	Height int
}

// Runner drives a Pipeline from a dedicated worker goroutine.  Frames and
// configuration mutations arrive over the same single consumer channel so
// the pipeline state is only ever touched by one goroutine, results leave
// over a buffered channel for the display or persistence side to consume.
//
// Cancellation is coarse: the worker stops after the in flight frame
// completes, there is no mid frame cancellation.
type Runner struct {
	pipe *Pipeline

	frames  chan Frame
	cmds    chan func(p *Pipeline)
	results chan Result

	wg sync.WaitGroup
}

// NewRunner returns a runner for the pipeline.  Buffer sets the capacity
// of the frame and result channels.
func NewRunner(pipe *Pipeline, buffer int) *Runner {

	if buffer < 1 {
		buffer = 1
	}

	return &Runner{
		pipe:    pipe,
		frames:  make(chan Frame, buffer),
		cmds:    make(chan func(p *Pipeline)),
		results: make(chan Result, buffer),
	}
}

// Start launches the worker goroutine.  The results channel is closed once
// the context is cancelled and the current frame has completed.
func (r *Runner) Start(ctx context.Context) {

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(r.results)

		for {
			select {
			case <-ctx.Done():
				return

			case fn := <-r.cmds:
				fn(r.pipe)

			case frame := <-r.frames:

				res := r.pipe.Process(frame.Tensor, frame.Width, frame.Height)

				select {
				case r.results <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Submit queues a frame for processing.  Blocks when the frame buffer is
// full, returns false when the context has already been cancelled.  Frames
// buffered at cancellation time are dropped, not processed.
func (r *Runner) Submit(ctx context.Context, frame Frame) bool {

	if ctx.Err() != nil {
		return false
	}

	select {
	case r.frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// Results returns the channel of processed frame results
func (r *Runner) Results() <-chan Result {
	return r.results
}

// Do hands a pipeline mutation to the worker goroutine, eg: adding a
// counting line from a UI thread.  Blocks until the worker picks it up,
// returns false once the runner has stopped.
func (r *Runner) Do(ctx context.Context, fn func(p *Pipeline)) bool {

	select {
	case r.cmds <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// Wait blocks until the worker goroutine has exited
func (r *Runner) Wait() {
	r.wg.Wait()
}
