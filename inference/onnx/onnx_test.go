package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
)

const tinyYolo = `
input:
  width: 416
  height: 416
output:
  name: output
  shape: [1, 425, 13, 13]
layout:
  format: region
  gridWidth: 13
  gridHeight: 13
  anchors: 5
  classes: 80
  activate: true
  biases: [0.57273, 0.677385, 1.87446, 2.06253, 3.33843, 5.47434, 7.88282, 3.52778, 9.77052, 9.16828]
runtime:
  backend: cpu
`

// TestParseNetworkConfig applies defaults and carries the layout through.
func TestParseNetworkConfig(t *testing.T) {
	cfg, err := ParseNetworkConfig([]byte(tinyYolo))
	require.NoError(t, err)

	assert.Equal(t, "images", cfg.Input.Name)
	assert.Equal(t, 3, cfg.Input.Channels)
	assert.Equal(t, 1, cfg.Input.Batch)
	assert.Equal(t, []int64{1, 3, 416, 416}, cfg.Input.Spec().Shape)
	assert.Equal(t, postprocess.FormatRegion, cfg.Layout.Format)
	assert.Equal(t, 416, cfg.Layout.NetWidth)
	assert.Len(t, cfg.Layout.Biases, 10)
}

// TestParseNetworkConfig_Invalid rejects unusable descriptions.
func TestParseNetworkConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "input: {width: 416, height: 416}\nlayout: {format: rows, classes: 2}\nextra: 1\n",
		"no width":      "input: {height: 416}\nlayout: {format: rows, classes: 2}\n",
		"bad layout":    "input: {width: 416, height: 416}\nlayout: {format: grid}\n",
		"bad backend":   "input: {width: 416, height: 416}\nlayout: {format: rows, classes: 2}\nruntime: {backend: tpu}\n",
		"bad shape":     "input: {width: 416, height: 416}\noutput: {name: out, shape: [1, -1]}\nlayout: {format: rows, classes: 2}\n",
		"not a mapping": "- 1\n- 2\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseNetworkConfig([]byte(doc))
			assert.ErrorIs(t, err, inference.ErrInvalidNetwork)
		})
	}
}

// TestPredictor_Lifecycle covers the contract reachable without the native runtime.
func TestPredictor_Lifecycle(t *testing.T) {
	p := NewPredictor(nil)
	assert.Equal(t, 0, p.Width())
	assert.Nil(t, p.Output())
	assert.Equal(t, postprocess.Layout{}, p.Layout())
	assert.ErrorIs(t, p.Predict(make([]float32, 3)), inference.ErrNotSetup)

	dir := t.TempDir()
	err := p.Setup(filepath.Join(dir, "net.yaml"), filepath.Join(dir, "net.onnx"))
	assert.ErrorIs(t, err, inference.ErrFileNotFound)

	cfg := filepath.Join(dir, "net.yaml")
	weights := filepath.Join(dir, "net.onnx")
	require.NoError(t, os.WriteFile(cfg, []byte("input: {width: 0}\n"), 0o600))
	require.NoError(t, os.WriteFile(weights, []byte("not a model"), 0o600))
	assert.ErrorIs(t, p.Setup(cfg, weights), inference.ErrInvalidNetwork)

	assert.NoError(t, p.Close())
}
