// Package pipeline - Overlaps capture and preprocessing of one frame with inference on the previous one.
//
// Each cycle captures frame n and preprocesses it while frame n-1 is still in
// inference on a persistent worker. The cycle then joins that inference,
// post-processes its output, submits frame n and emits the detections of
// frame n-1 together with frame n-1. Detections therefore lag capture by
// exactly one frame and are never paired with a frame they were not computed
// from.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// Source produces frames. It returns io.EOF at the end of the stream.
type Source[F any] interface {
	Read(ctx context.Context) (F, error)
}

// Sink consumes a frame with the detections computed from it. The frame is
// closed after Emit returns when it implements io.Closer, so sinks must not
// retain it.
type Sink[F any] interface {
	Emit(ctx context.Context, frame F, detections []postprocess.Detection) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[F any] func(ctx context.Context, frame F, detections []postprocess.Detection) error

// Emit calls f.
func (f SinkFunc[F]) Emit(ctx context.Context, frame F, detections []postprocess.Detection) error {
	return f(ctx, frame, detections)
}

// Options configures a Pipeline.
type Options[F any] struct {
	// Source supplies frames.
	Source Source[F]
	// Preprocess turns a frame into a blob. The returned slice may be reused
	// by the next call; the pipeline copies it before handing it to the worker.
	Preprocess func(frame F) ([]float32, error)
	// Predictor runs inference. It must be set up.
	Predictor inference.Predictor
	// PostProcess decodes the predictor output for the frame it was computed from.
	PostProcess func(frame F) ([]postprocess.Detection, error)
	// Sink receives every frame that got a result.
	Sink Sink[F]

	// Drain emits the last in-flight result when the source reports io.EOF.
	Drain bool
	// StatsInterval is the FPS period, one second when zero.
	StatsInterval time.Duration
	// Clock drives the statistics, the wall clock when nil.
	Clock clock.Clock
	// Logger receives the periodic statistics.
	Logger *zap.Logger
}

// Pipeline runs the double-buffered detection loop.
type Pipeline[F any] struct {
	opts    Options[F]
	handoff []float32
	stats   *Stats
	logger  *zap.Logger
}

// New validates the options and allocates the hand-off buffer.
//
// Arguments:
//   - opts: The stages and tunables.
//
// Returns:
//   - *Pipeline[F]: The pipeline, ready to Run.
//   - error: A missing stage, or inference.ErrNotSetup.
func New[F any](opts Options[F]) (*Pipeline[F], error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case opts.Preprocess == nil:
		return nil, errors.New("pipeline: preprocess is required")
	case opts.Predictor == nil:
		return nil, errors.New("pipeline: predictor is required")
	case opts.PostProcess == nil:
		return nil, errors.New("pipeline: post-process is required")
	case opts.Sink == nil:
		return nil, errors.New("pipeline: sink is required")
	}

	pr := opts.Predictor
	size := pr.Width() * pr.Height() * pr.Channels() * pr.Batch()
	if size == 0 {
		return nil, inference.ErrNotSetup
	}

	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Pipeline[F]{
		opts:    opts,
		handoff: make([]float32, size),
		stats:   newStats(opts.Clock, opts.StatsInterval, opts.Logger),
		logger:  opts.Logger,
	}, nil
}

// Stats returns the live counters.
func (p *Pipeline[F]) Stats() *Stats { return p.stats }

// Run processes frames until the source ends, a stage fails or ctx is done.
// Any failure is fatal and returned; the in-flight inference is always joined
// before Run returns. Cancellation returns nil. io.EOF from the source is
// returned wrapped unless Options.Drain is set.
func (p *Pipeline[F]) Run(ctx context.Context) error {
	w := startWorker(p.opts.Predictor, p.handoff, p.opts.Clock)
	defer w.stop()

	var (
		prev    F
		hasPrev bool
	)
	defer func() {
		if hasPrev {
			closeFrame(prev)
		}
	}()

	p.stats.start()
	p.logger.Debug("pipeline started", zap.Int("blob", len(p.handoff)))

	for {
		if ctx.Err() != nil {
			return p.cancelled(w)
		}

		frame, err := p.opts.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return p.cancelled(w)
			}
			if errors.Is(err, io.EOF) && p.opts.Drain {
				return p.drain(ctx, w, prev, hasPrev)
			}
			return errors.Wrap(err, "reading frame")
		}
		p.stats.capture()

		dets, ready, err := p.cycle(w, frame, prev)
		if err != nil {
			closeFrame(frame)
			return err
		}

		if ready {
			if err := p.opts.Sink.Emit(ctx, prev, dets); err != nil {
				closeFrame(frame)
				return errors.Wrap(err, "emitting detections")
			}
			p.stats.emit(len(dets))
		}

		if hasPrev {
			closeFrame(prev)
		}
		prev, hasPrev = frame, true
	}
}

// cycle preprocesses frame, collects the result of prev and submits frame.
func (p *Pipeline[F]) cycle(w *worker, frame, prev F) ([]postprocess.Detection, bool, error) {
	blob, err := p.opts.Preprocess(frame)
	if err != nil {
		return nil, false, errors.Wrap(err, "preprocessing frame")
	}
	if len(blob) != len(p.handoff) {
		return nil, false, errors.Wrapf(inference.ErrInputSize, "blob has %d values, network takes %d", len(blob), len(p.handoff))
	}

	dets, ready, err := p.collect(w, prev)
	if err != nil {
		return nil, false, err
	}

	copy(p.handoff, blob)
	w.submit()
	return dets, ready, nil
}

// collect joins the in-flight inference and post-processes it against prev.
func (p *Pipeline[F]) collect(w *worker, prev F) ([]postprocess.Detection, bool, error) {
	r, ok := w.join()
	if !ok {
		return nil, false, nil
	}
	if r.err != nil {
		return nil, false, errors.Wrap(r.err, "inference")
	}
	p.stats.inference(r.elapsed)

	dets, err := p.opts.PostProcess(prev)
	if err != nil {
		return nil, false, errors.Wrap(err, "post-processing")
	}
	return dets, true, nil
}

func (p *Pipeline[F]) drain(ctx context.Context, w *worker, prev F, hasPrev bool) error {
	dets, ready, err := p.collect(w, prev)
	if err != nil {
		return err
	}
	if ready && hasPrev {
		if err := p.opts.Sink.Emit(ctx, prev, dets); err != nil {
			return errors.Wrap(err, "emitting detections")
		}
		p.stats.emit(len(dets))
	}
	p.logger.Debug("pipeline drained", zap.Int64("emitted", p.stats.emitted.Load()))
	return nil
}

func (p *Pipeline[F]) cancelled(w *worker) error {
	w.join()
	p.logger.Debug("pipeline cancelled", zap.Int64("emitted", p.stats.emitted.Load()))
	return nil
}

func closeFrame[F any](frame F) {
	if c, ok := any(frame).(io.Closer); ok {
		c.Close()
	}
}
