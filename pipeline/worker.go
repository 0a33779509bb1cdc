package pipeline

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nvr-ai/go-darknet/inference"
)

type result struct {
	err     error
	elapsed time.Duration
}

// worker runs inference on a single persistent goroutine. The main goroutine
// submits the hand-off buffer and later collects the result; at most one
// inference is in flight.
type worker struct {
	predictor inference.Predictor
	clock     clock.Clock
	handoff   []float32

	submitCh chan struct{}
	doneCh   chan result
	exited   chan struct{}

	// inFlight is only touched by the main goroutine.
	inFlight bool
}

func startWorker(predictor inference.Predictor, handoff []float32, clk clock.Clock) *worker {
	w := &worker{
		predictor: predictor,
		clock:     clk,
		handoff:   handoff,
		submitCh:  make(chan struct{}, 1),
		doneCh:    make(chan result, 1),
		exited:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.exited)
	for range w.submitCh {
		start := w.clock.Now()
		err := w.predictor.Predict(w.handoff)
		w.doneCh <- result{err: err, elapsed: w.clock.Since(start)}
	}
}

// submit starts inference on the hand-off buffer. The caller must have joined
// the previous inference.
func (w *worker) submit() {
	w.inFlight = true
	w.submitCh <- struct{}{}
}

// join waits for the in-flight inference. ok is false when nothing was in flight.
func (w *worker) join() (r result, ok bool) {
	if !w.inFlight {
		return result{}, false
	}
	r = <-w.doneCh
	w.inFlight = false
	return r, true
}

// stop joins any in-flight inference and ends the goroutine.
func (w *worker) stop() {
	w.join()
	close(w.submitCh)
	<-w.exited
}
