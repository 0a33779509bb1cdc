// Package main is the darknet command line: threaded detection on a video
// source and identification of still images.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/config"
	"github.com/nvr-ai/go-darknet/logging"
)

const (
	// Flags.
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagDebug       = "debug"
	flagBackend     = "backend"
	flagThresh      = "thresh"
	flagNMS         = "nms"
	flagHier        = "hier"
	flagDrain       = "drain"
	flagLoop        = "loop"
	flagFilter      = "filter"
	flagMinScore    = "min-score"
	flagRecord      = "record"
	flagNoWindow    = "no-window"
	flagDNNBackend  = "dnn-backend"
	flagDNNTarget   = "dnn-target"
	flagLabels      = "labels"
	flagTop         = "top"
	flagChannelMap  = "channel-map"
	flagIterations  = "iterations"
	flagWarmup      = "warmup"
	flagOutput      = "output"
	flagProfile     = "profile"
	detectArgsUsage = "<names_file> <cfg_file> <weights_file> [<video_source>]"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "darknet",
		Usage:           "real-time object detection on video streams",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level: debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable development logging",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "predictor backend: darknet or onnx",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "detect objects in a camera, video file, stream or image directory",
				ArgsUsage: detectArgsUsage,
				Flags:     detectFlags(),
				Action:    detectAction,
			},
			{
				Name:      "identify",
				Usage:     "print the network output vector of each image",
				ArgsUsage: "<cfg_file> <weights_file> <image>...",
				Flags:     identifyFlags(),
				Action:    identifyAction,
			},
			{
				Name:      "bench",
				Usage:     "measure preprocessing, inference and post-processing on a directory of images",
				ArgsUsage: benchArgsUsage,
				Flags:     benchFlags(),
				Action:    benchAction,
			},
		},
	}
}

func detectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: flagThresh, Usage: "detection probability threshold"},
		&cli.Float64Flag{Name: flagNMS, Usage: "non-maximum suppression IoU, 0 disables"},
		&cli.Float64Flag{Name: flagHier, Usage: "hierarchical threshold"},
		&cli.BoolFlag{Name: flagDrain, Usage: "emit the last pending result at the end of a file"},
		&cli.BoolFlag{Name: flagLoop, Usage: "replay image directories forever"},
		&cli.StringSliceFlag{Name: flagFilter, Usage: "only show these labels"},
		&cli.Float64Flag{Name: flagMinScore, Usage: "hide detections below this probability"},
		&cli.PathFlag{Name: flagRecord, Usage: "record annotated frames to `FILE`"},
		&cli.BoolFlag{Name: flagNoWindow, Usage: "do not open a window"},
		&cli.StringFlag{Name: flagDNNBackend, Usage: "OpenCV DNN backend"},
		&cli.StringFlag{Name: flagDNNTarget, Usage: "OpenCV DNN target"},
		&cli.IntSliceFlag{Name: flagChannelMap, Usage: "frame channel feeding each network plane"},
		&cli.BoolFlag{Name: flagProfile, Usage: "log runtime memory and stage timings periodically"},
	}
}

func identifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{Name: flagLabels, Usage: "class names `FILE` for the printed indices"},
		&cli.IntFlag{Name: flagTop, Value: 5, Usage: "number of highest values printed per image"},
		&cli.StringFlag{Name: flagDNNBackend, Usage: "OpenCV DNN backend"},
		&cli.StringFlag{Name: flagDNNTarget, Usage: "OpenCV DNN target"},
		&cli.IntSliceFlag{Name: flagChannelMap, Usage: "image channel feeding each network plane"},
	}
}

// loadConfig reads the config file, when given, and applies the command line
// flags that were set on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.Path(flagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if c.IsSet(flagLogLevel) {
		cfg.Logging.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagDebug) {
		cfg.Logging.Development = c.Bool(flagDebug)
		cfg.Logging.Level = "debug"
	}
	if c.IsSet(flagBackend) {
		cfg.Backend = config.Backend(c.String(flagBackend))
	}
	if c.IsSet(flagThresh) {
		cfg.Detection.Confidence = float32(c.Float64(flagThresh))
	}
	if c.IsSet(flagNMS) {
		cfg.Detection.NMS = float32(c.Float64(flagNMS))
	}
	if c.IsSet(flagHier) {
		cfg.Detection.HierThreshold = float32(c.Float64(flagHier))
	}
	if c.IsSet(flagDrain) {
		cfg.Pipeline.Drain = c.Bool(flagDrain)
	}
	if c.IsSet(flagLoop) {
		cfg.Pipeline.Loop = c.Bool(flagLoop)
	}
	if c.IsSet(flagFilter) {
		cfg.Output.Labels = c.StringSlice(flagFilter)
	}
	if c.IsSet(flagMinScore) {
		cfg.Output.MinScore = float32(c.Float64(flagMinScore))
	}
	if c.IsSet(flagRecord) {
		cfg.Output.Record = c.Path(flagRecord)
	}
	if c.IsSet(flagNoWindow) {
		cfg.Output.Window = !c.Bool(flagNoWindow)
	}
	if c.IsSet(flagDNNBackend) {
		cfg.Darknet.Backend = c.String(flagDNNBackend)
	}
	if c.IsSet(flagDNNTarget) {
		cfg.Darknet.Target = c.String(flagDNNTarget)
	}
	if c.IsSet(flagProfile) {
		cfg.Pipeline.Profile = c.Bool(flagProfile)
	}
	if c.IsSet(flagChannelMap) {
		cfg.Preprocess.ChannelMap = c.IntSlice(flagChannelMap)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup loads the configuration and builds the logger for a command.
func setup(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func usageError(c *cli.Context, args string) error {
	return errors.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, args)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "darknet: %v\n", err)
		os.Exit(1)
	}
}
