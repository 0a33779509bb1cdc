package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/capture"
	"github.com/nvr-ai/go-darknet/config"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/inference/darknet"
	"github.com/nvr-ai/go-darknet/inference/onnx"
	"github.com/nvr-ai/go-darknet/pipeline"
	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/profiler"
)

// errQuit is returned by the window key handler to end the run normally.
var errQuit = errors.New("quit requested")

const windowName = "darknet"

// newPredictor returns the predictor selected by the configuration, not yet set up.
func newPredictor(cfg config.Config, logger *zap.Logger) inference.Predictor {
	if cfg.Backend == config.BackendONNX {
		return onnx.NewPredictor(logger.Named("onnx"))
	}
	return darknet.NewPredictor(darknet.Options{
		Backend: gocv.ParseNetBackend(cfg.Darknet.Backend),
		Target:  gocv.ParseNetTarget(cfg.Darknet.Target),
	}, logger.Named("dnn"))
}

// frameSource is a pipeline source that must be released.
type frameSource interface {
	pipeline.Source[capture.Frame]
	io.Closer
}

type directorySource struct{ *capture.DirectorySource }

func (directorySource) Close() error { return nil }

// openSource opens a device id, a video file, a stream URL or an image directory.
func openSource(source string, loop bool, logger *zap.Logger) (frameSource, error) {
	if source != "" {
		if info, err := os.Stat(source); err == nil && info.IsDir() {
			d, err := capture.OpenDirectory(source, loop)
			if err != nil {
				return nil, err
			}
			logger.Info("image directory opened", zap.String("source", source), zap.Int("images", d.Len()))
			return directorySource{d}, nil
		}
	}
	v, err := capture.OpenVideo(source, logger)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// newFilter combines the label and score filters of the output config. It
// returns nil when nothing is filtered.
func newFilter(out config.Output, labels []string) postprocess.Filter {
	var filters []postprocess.Filter
	if len(out.Labels) > 0 {
		filters = append(filters, postprocess.NewLabelFilter(labels, out.Labels))
	}
	if out.MinScore > 0 {
		filters = append(filters, postprocess.NewScoreFilter(out.MinScore))
	}
	if out.MinArea > 0 {
		filters = append(filters, postprocess.NewAreaFilter(out.MinArea))
	}
	if len(filters) == 0 {
		return nil
	}
	return postprocess.Chain(filters...)
}

// recorder opens the video writer on the first frame, once the frame size is known.
type recorder struct {
	overlay *capture.Overlay
	path    string
	codec   string
	fps     float64
}

func (r *recorder) Emit(ctx context.Context, f capture.Frame, dets []postprocess.Detection) error {
	if r.path != "" && r.overlay.Writer == nil {
		w, err := gocv.VideoWriterFile(r.path, r.codec, r.fps, f.Width(), f.Height(), true)
		if err != nil {
			return errors.Wrapf(err, "opening recording %s", r.path)
		}
		r.overlay.Writer = w
	}
	return r.overlay.Emit(ctx, f, dets)
}

func detectAction(c *cli.Context) (err error) {
	if c.NArg() < 3 || c.NArg() > 4 {
		return usageError(c, detectArgsUsage)
	}
	namesPath, cfgPath, weightsPath := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	predictor := newPredictor(cfg, logger)
	defer func() { err = multierr.Append(err, predictor.Close()) }()

	detector, err := inference.NewDetectorBuilder().
		WithLogger(logger).
		WithPredictor(predictor).
		WithNetwork(cfgPath, weightsPath).
		WithLabelsFile(namesPath).
		WithParams(cfg.Detection.Params()).
		WithChannelMap(cfg.Preprocess.ChannelMap).
		Build()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, detector.Close()) }()

	src, err := openSource(c.Args().Get(3), cfg.Pipeline.Loop, logger.Named("capture"))
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	overlay := &capture.Overlay{
		Labels:  detector.Labels(),
		Classes: detector.Layout().Classes,
		Filter:  newFilter(cfg.Output, detector.Labels()),
		Logger:  logger,
		OnKey: func(key int) error {
			if key == 27 || key == 'q' {
				return errQuit
			}
			return nil
		},
	}
	if cfg.Output.Window {
		overlay.Window = gocv.NewWindow(windowName)
	}
	defer func() { err = multierr.Append(err, overlay.Close()) }()

	fps := cfg.Output.FPS
	if v, ok := src.(*capture.VideoSource); ok && fps == 0 {
		fps = v.FPS()
	}
	if fps <= 0 {
		fps = 25
	}
	sink := &recorder{overlay: overlay, path: cfg.Output.Record, codec: cfg.Output.Codec, fps: fps}

	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: cfg.Pipeline.ProfileInterval,
		Logger:         logger.Named("profiler"),
	})
	p, err := pipeline.New(pipeline.Options[capture.Frame]{
		Source: src,
		Preprocess: func(f capture.Frame) ([]float32, error) {
			defer rp.StartOperation("preprocess")()
			return detector.Preprocess(f.Mat)
		},
		Predictor: predictor,
		PostProcess: func(f capture.Frame) ([]postprocess.Detection, error) {
			defer rp.StartOperation("postprocess")()
			return detector.Decode(f.Width(), f.Height())
		},
		Sink:          sink,
		Drain:         cfg.Pipeline.Drain,
		StatsInterval: cfg.Pipeline.StatsInterval,
		Logger:        logger.Named("pipeline"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Pipeline.Profile {
		rp.AddMetricsCollector(p.Stats())
		rp.Start(ctx)
		defer rp.Stop()
	}

	err = p.Run(ctx)
	s := p.Stats().Snapshot()
	logger.Info("detection finished",
		zap.Int64("captured", s.Captured),
		zap.Int64("emitted", s.Emitted),
		zap.Duration("meanInference", s.MeanInference),
	)
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
