package darknet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
)

const yoloV2Tiny = `
[net]
# Testing
batch=1
subdivisions=1
width=416
height=416
channels=3

[convolutional]
batch_normalize=1
filters=16
size=3
activation=leaky

[region]
anchors = 0.57273, 0.677385, 1.87446, 2.06253, 3.33843, 5.47434, 7.88282, 3.52778, 9.77052, 9.16828
bias_match=1
classes=80
coords=4
num=5
; trailing comment
`

// TestParseConfig reads the net geometry and the region layer.
func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(yoloV2Tiny))
	require.NoError(t, err)

	assert.Equal(t, 416, cfg.Width)
	assert.Equal(t, 416, cfg.Height)
	assert.Equal(t, 3, cfg.Channels)
	assert.Equal(t, 80, cfg.Classes)
	assert.Len(t, cfg.Anchors, 10)
	assert.InDelta(t, 9.16828, cfg.Anchors[9], 1e-5)
	require.Len(t, cfg.Sections, 3)
	assert.Equal(t, "leaky", cfg.Sections[1].Options["activation"])
}

// TestParseConfig_Yolo takes the class count from the last yolo layer.
func TestParseConfig_Yolo(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader("[net]\nwidth=608\nheight=320\n[yolo]\nclasses=3\n[yolo]\nclasses=20\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Classes)
	assert.Equal(t, 3, cfg.Channels, "channels default to 3")
	assert.Nil(t, cfg.Anchors)
}

// TestParseConfig_Invalid rejects malformed descriptions.
func TestParseConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no net":        "[convolutional]\nfilters=1\n",
		"no classes":    "[net]\nwidth=1\nheight=1\n",
		"bad width":     "[net]\nwidth=wide\nheight=1\n[region]\nclasses=1\n",
		"zero height":   "[net]\nwidth=1\nheight=0\n[region]\nclasses=1\n",
		"orphan option": "width=1\n[net]\n",
		"no equals":     "[net]\nwidth 1\n",
		"unterminated":  "[net\nwidth=1\n",
		"bad anchors":   "[net]\nwidth=1\nheight=1\n[region]\nclasses=1\nanchors=1,x\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(doc))
			assert.ErrorIs(t, err, inference.ErrInvalidNetwork)
		})
	}
}

// TestPredictor_Lifecycle covers the contract reachable without real weights.
func TestPredictor_Lifecycle(t *testing.T) {
	p := NewPredictor(Options{}, nil)
	assert.Equal(t, 0, p.Width())
	assert.Equal(t, 0, p.Batch())
	assert.Empty(t, p.Output())
	assert.Equal(t, postprocess.Layout{}, p.Layout())
	assert.ErrorIs(t, p.Predict(make([]float32, 3)), inference.ErrNotSetup)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "yolov2-tiny.cfg")
	require.NoError(t, os.WriteFile(cfg, []byte(yoloV2Tiny), 0o600))

	err := p.Setup(cfg, filepath.Join(dir, "yolov2-tiny.weights"))
	assert.ErrorIs(t, err, inference.ErrFileNotFound)

	_, err = LoadConfig(filepath.Join(dir, "missing.cfg"))
	assert.ErrorIs(t, err, inference.ErrFileNotFound)

	assert.NoError(t, p.Close())
}
