package main

import (
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/capture"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/preprocess"
)

// topK returns the indices of the k largest values, largest first.
func topK(values []float32, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	if k > 0 && k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// printIdentity writes one line per selected output value.
func printIdentity(w io.Writer, path string, values []float32, labels []string, k int) {
	fmt.Fprintf(w, "%s: %d values\n", path, len(values))
	for _, i := range topK(values, k) {
		name := ""
		if i < len(labels) {
			name = labels[i]
		}
		fmt.Fprintf(w, "  %4d %-20s %.6f\n", i, name, values[i])
	}
}

func identifyAction(c *cli.Context) (err error) {
	if c.NArg() < 3 {
		return usageError(c, "<cfg_file> <weights_file> <image>...")
	}
	cfgPath, weightsPath := c.Args().Get(0), c.Args().Get(1)
	paths := c.Args().Slice()[2:]

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

	pre, err := preprocess.NewImagePreprocessor(preprocess.Config{
		Width:      predictor.Width(),
		Height:     predictor.Height(),
		Batch:      predictor.Batch(),
		ChannelMap: cfg.Preprocess.ChannelMap,
	})
	if err != nil {
		return err
	}

	batch := predictor.Batch()
	for start := 0; start < len(paths); start += batch {
		chunk := paths[start:min(start+batch, len(paths))]
		imgs := make([]image.Image, len(chunk))
		for i, path := range chunk {
			if imgs[i], err = capture.LoadImage(path); err != nil {
				return err
			}
		}

		blob, err := pre.RunBatch(imgs)
		if err != nil {
			return err
		}
		if err := predictor.Predict(blob); err != nil {
			return err
		}
		logger.Debug("batch identified", zap.Int("first", start), zap.Int("images", len(chunk)))

		for i, path := range chunk {
			values, err := postprocess.Identify(predictor.Output(), batch, i)
			if err != nil {
				return err
			}
			printIdentity(c.App.Writer, path, values, labels, c.Int(flagTop))
		}
	}
	return nil
}
