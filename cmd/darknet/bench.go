package main

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-darknet/benchmark"
	"github.com/nvr-ai/go-darknet/inference"
)

const benchArgsUsage = "<cfg_file> <weights_file> <image_dir>"

func benchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{Name: flagLabels, Usage: "class names `FILE`, enables the label range check"},
		&cli.IntFlag{Name: flagIterations, Value: 100, Usage: "measured iterations"},
		&cli.IntFlag{Name: flagWarmup, Value: 10, Usage: "warmup iterations"},
		&cli.PathFlag{Name: flagOutput, Usage: "write JSON and CSV results into `DIR`"},
		&cli.Float64Flag{Name: flagThresh, Usage: "detection probability threshold"},
		&cli.Float64Flag{Name: flagNMS, Usage: "non-maximum suppression IoU, 0 disables"},
		&cli.StringFlag{Name: flagDNNBackend, Usage: "OpenCV DNN backend"},
		&cli.StringFlag{Name: flagDNNTarget, Usage: "OpenCV DNN target"},
	}
}

func benchAction(c *cli.Context) (err error) {
	if c.NArg() != 3 {
		return usageError(c, benchArgsUsage)
	}
	cfgPath, weightsPath, dir := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	var labels []string
	if path := c.Path(flagLabels); path != "" {
		if labels, err = inference.LoadLabels(path); err != nil {
			return err
		}
	}

	predictor := newPredictor(cfg, logger)
	defer func() { err = multierr.Append(err, predictor.Close()) }()
	if err := predictor.Setup(cfgPath, weightsPath); err != nil {
		return err
	}

	suite, err := benchmark.NewSuite(benchmark.NewSuiteArgs{
		Predictor:  predictor,
		Labels:     labels,
		ChannelMap: cfg.Preprocess.ChannelMap,
		OutputDir:  c.Path(flagOutput),
		Logger:     logger.Named("bench"),
	})
	if err != nil {
		return err
	}
	if err := suite.LoadCorpus(dir); err != nil {
		return err
	}

	suite.AddScenario(benchmark.NewScenarioBuilder(string(cfg.Backend)).
		WithIterations(c.Int(flagIterations)).
		WithWarmupRuns(c.Int(flagWarmup)).
		WithParams(cfg.Detection.Params()).
		Build())
	return suite.RunAllScenarios(c.Context)
}
