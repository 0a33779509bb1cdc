package inference_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/test"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadLabels trims lines and drops trailing blank lines.
func TestLoadLabels(t *testing.T) {
	path := writeFile(t, "coco.names", "person\n bicycle \r\n\ncar\n\n\n")

	labels, err := inference.LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "", "car"}, labels)

	_, err = inference.LoadLabels(filepath.Join(t.TempDir(), "missing.names"))
	assert.ErrorIs(t, err, inference.ErrFileNotFound)
}

// TestLoadLabels_Empty returns an empty, non-nil list so detections from an
// empty names file fail the label range check.
func TestLoadLabels_Empty(t *testing.T) {
	labels, err := inference.LoadLabels(writeFile(t, "empty.names", ""))
	require.NoError(t, err)
	require.NotNil(t, labels)
	assert.Empty(t, labels)

	layout := postprocess.Layout{Format: postprocess.FormatRows, Classes: 1, NetWidth: 416, NetHeight: 416}
	raw := []float32{0.5, 0.5, 0.1, 0.1, 1, 0.9}
	_, err = postprocess.Detect(raw, layout, postprocess.Params{Confidence: 0.2}, labels)
	assert.ErrorIs(t, err, postprocess.ErrLabelOutOfRange)
}

// TestCheckFiles reports the first missing path.
func TestCheckFiles(t *testing.T) {
	present := writeFile(t, "net.cfg", "[net]\n")

	assert.NoError(t, inference.CheckFiles(present))
	err := inference.CheckFiles(present, present+".missing")
	assert.ErrorIs(t, err, inference.ErrFileNotFound)
	assert.Contains(t, err.Error(), ".missing")
}

// TestDims checks the accessors and the input size check.
func TestDims(t *testing.T) {
	var zero inference.Dims
	assert.Equal(t, 0, zero.Width())
	assert.Equal(t, 0, zero.Batch())

	d := inference.Dims{W: 4, H: 3, C: 3, B: 2}
	assert.Equal(t, 72, d.InputSize())
	assert.NoError(t, d.CheckInput(make([]float32, 72)))
	assert.ErrorIs(t, d.CheckInput(make([]float32, 71)), inference.ErrInputSize)
}

// TestMockPredictor_Lifecycle checks the predictor contract the pipeline relies on.
func TestMockPredictor_Lifecycle(t *testing.T) {
	p := test.NewMockPredictor(2, 2, 3, 1)
	assert.Equal(t, 0, p.Width(), "dimensions are zero before setup")

	assert.ErrorIs(t, p.Predict(make([]float32, 12)), inference.ErrNotSetup)
	require.NoError(t, p.Setup("", ""))
	assert.ErrorIs(t, p.Setup("", ""), inference.ErrAlreadySetup)
	assert.Equal(t, 2, p.Width())

	assert.ErrorIs(t, p.Predict(make([]float32, 11)), inference.ErrInputSize)

	blob := make([]float32, 12)
	blob[0] = 7
	require.NoError(t, p.Predict(blob))
	assert.Equal(t, float32(7), p.Output()[0])
	require.NoError(t, p.Close())
}

// TestProfiledPredictor counts calls and accumulates duration.
func TestProfiledPredictor(t *testing.T) {
	mock := test.NewMockPredictor(1, 1, 3, 1)
	mock.Delay = 5 * time.Millisecond
	require.NoError(t, mock.Setup("", ""))

	p := inference.NewProfiledPredictor(mock)
	assert.Zero(t, p.Metrics().Average())
	assert.Zero(t, p.Metrics().Throughput())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Predict(make([]float32, 3)))
	}
	assert.ErrorIs(t, p.Predict(nil), inference.ErrInputSize, "errors pass through")

	m := p.Metrics()
	assert.Equal(t, int64(4), m.InferenceCount)
	assert.GreaterOrEqual(t, m.TotalTime, 15*time.Millisecond)
	assert.Greater(t, m.Throughput(), 0.0)
	assert.Equal(t, 1, p.Width(), "dimensions come from the wrapped predictor")

	p.ResetMetrics()
	assert.Equal(t, inference.Metrics{}, p.Metrics())
}

func regionNet() (*test.MockPredictor, postprocess.Layout) {
	layout := postprocess.Layout{
		Format:     postprocess.FormatRegion,
		GridWidth:  1,
		GridHeight: 1,
		Anchors:    1,
		Classes:    2,
		Biases:     []float32{1, 1},
	}
	mock := test.NewMockPredictor(8, 8, 3, 1)
	mock.OutputLayout = layout
	mock.Transform = func([]float32) []float32 {
		// One centred box covering the whole input, class 1.
		return []float32{0.5, 0.5, 0, 0, 1, 0.1, 0.9}
	}
	return mock, layout
}

// TestDetectorBuilder_Errors keeps the first error and validates the predictor.
func TestDetectorBuilder_Errors(t *testing.T) {
	_, err := inference.NewDetectorBuilder().Build()
	assert.Error(t, err)

	mock, _ := regionNet()
	_, err = inference.NewDetectorBuilder().WithPredictor(mock).Build()
	assert.ErrorIs(t, err, inference.ErrNotSetup)

	b := inference.NewDetectorBuilder().
		WithPredictor(mock).
		WithLabelsFile(filepath.Join(t.TempDir(), "none.names")).
		WithNetwork("", "")
	assert.True(t, b.HasError())
	_, err = b.Build()
	assert.ErrorIs(t, err, inference.ErrFileNotFound)
	assert.Equal(t, 0, mock.Width(), "network not set up after an earlier error")

	plain := test.NewMockPredictor(8, 8, 3, 1)
	_, err = inference.NewDetectorBuilder().WithPredictor(plain).WithNetwork("", "").Build()
	assert.ErrorIs(t, err, postprocess.ErrInvalidLayout, "no layout reported")

	assert.Panics(t, func() { inference.NewDetectorBuilder().MustBuild() })
}

// TestDetector_Detect runs the synchronous chain and reports frame pixels.
func TestDetector_Detect(t *testing.T) {
	mock, _ := regionNet()

	d, err := inference.NewDetectorBuilder().
		WithPredictor(mock).
		WithNetwork("", "").
		WithLabels([]string{"cat", "dog"}).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 8, d.Layout().NetWidth, "network size filled from the predictor")

	frame := test.NewMockFrameGenerator(16, 16).GenerateStaticFrame()
	defer frame.Close()

	dets, err := d.Detect(frame)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].LabelIndex)
	assert.Equal(t, "dog", dets[0].Label(d.Labels()))
	assert.InDelta(t, 8, dets[0].X, 1e-4)
	assert.InDelta(t, 16, dets[0].Width, 1e-4)
	assert.InDelta(t, 0.9, dets[0].Probability, 1e-6)

	rel, err := d.Decode(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rel[0].X, 1e-6, "relative when no output size is given")

	p := d.Params()
	p.Confidence = 0.95
	d.SetParams(p)
	dets, err = d.Detect(frame)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

// TestDetector_LabelOutOfRange fails when a reported class has no name.
func TestDetector_LabelOutOfRange(t *testing.T) {
	mock, _ := regionNet()

	d, err := inference.NewDetectorBuilder().
		WithPredictor(mock).
		WithNetwork("", "").
		WithLabels([]string{"cat"}).
		Build()
	require.NoError(t, err)
	defer d.Close()

	frame := test.NewMockFrameGenerator(8, 8).GenerateStaticFrame()
	defer frame.Close()

	_, err = d.Detect(frame)
	assert.ErrorIs(t, err, postprocess.ErrLabelOutOfRange)
}
