// Package onnx - Predictor backed by ONNX Runtime.
package onnx

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/inference/providers"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// Input describes the single image input of the model.
type Input struct {
	// Name is the graph input name.
	Name     string `json:"name"     yaml:"name"`
	Width    int    `json:"width"    yaml:"width"`
	Height   int    `json:"height"   yaml:"height"`
	Channels int    `json:"channels" yaml:"channels"`
	Batch    int    `json:"batch"    yaml:"batch"`
}

// Spec returns the NCHW tensor spec of the input.
func (i Input) Spec() providers.TensorSpec {
	return providers.TensorSpec{
		Name:  i.Name,
		Shape: []int64{int64(i.Batch), int64(i.Channels), int64(i.Height), int64(i.Width)},
	}
}

// NetworkConfig is the network description handed to Setup. The weights are
// the .onnx model file.
//
// @example
//
//	input:
//	  name: images
//	  width: 416
//	  height: 416
//	  channels: 3
//	  batch: 1
//	output:
//	  name: output
//	  shape: [1, 425, 13, 13]
//	layout:
//	  format: region
//	  gridWidth: 13
//	  gridHeight: 13
//	  anchors: 5
//	  classes: 80
//	  activate: true
//	  biases: [0.57273, 0.677385, 1.87446, 2.06253, 3.33843, 5.47434, 7.88282, 3.52778, 9.77052, 9.16828]
//	runtime:
//	  backend: cpu
type NetworkConfig struct {
	Input   Input                `json:"input"   yaml:"input"`
	Output  providers.TensorSpec `json:"output"  yaml:"output"`
	Layout  postprocess.Layout   `json:"layout"  yaml:"layout"`
	Runtime providers.Config     `json:"runtime" yaml:"runtime"`
}

func (c *NetworkConfig) applyDefaults() {
	if c.Input.Name == "" {
		c.Input.Name = "images"
	}
	if c.Input.Channels == 0 {
		c.Input.Channels = 3
	}
	if c.Input.Batch == 0 {
		c.Input.Batch = 1
	}
	if c.Layout.NetWidth == 0 && c.Layout.NetHeight == 0 {
		c.Layout.NetWidth = c.Input.Width
		c.Layout.NetHeight = c.Input.Height
	}
}

// Validate checks the input geometry, output layout and runtime options.
func (c *NetworkConfig) Validate() error {
	if c.Input.Width <= 0 || c.Input.Height <= 0 || c.Input.Channels <= 0 || c.Input.Batch <= 0 {
		return errors.Wrapf(inference.ErrInvalidNetwork, "input geometry %dx%dx%d batch %d",
			c.Input.Width, c.Input.Height, c.Input.Channels, c.Input.Batch)
	}
	if err := c.Layout.Validate(); err != nil {
		return errors.Wrap(inference.ErrInvalidNetwork, err.Error())
	}
	if err := c.Runtime.Validate(); err != nil {
		return errors.Wrap(inference.ErrInvalidNetwork, err.Error())
	}
	for _, d := range c.Output.Shape {
		if d <= 0 {
			return errors.Wrapf(inference.ErrInvalidNetwork, "output shape %v", c.Output.Shape)
		}
	}
	return nil
}

// LoadNetworkConfig reads and validates a YAML network description. Unknown
// keys are rejected.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - *NetworkConfig: The description with defaults applied.
//   - error: ErrFileNotFound, a parse error or ErrInvalidNetwork.
func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(inference.ErrFileNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return ParseNetworkConfig(data)
}

// ParseNetworkConfig decodes and validates a YAML network description.
func ParseNetworkConfig(data []byte) (*NetworkConfig, error) {
	var c NetworkConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrapf(inference.ErrInvalidNetwork, "decoding: %v", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
