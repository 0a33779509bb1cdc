package test

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/go-darknet/capture"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/pipeline"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// writeFrames stores count 32x16 frames whose red level encodes the frame index.
func writeFrames(t *testing.T, dir string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 32, 16))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+3] = uint8(50*(i+1)), 255
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame-%d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

type emission struct {
	index int
	dets  []postprocess.Detection
}

// TestDirectoryToOverlay runs image files through the detector and the
// threaded pipeline. The mock network reports one box whose probability is the
// red level at the blob center, so every emission can be traced to its frame.
func TestDirectoryToOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 3)

	p := NewMockPredictor(8, 8, 3, 1)
	p.OutputLayout = postprocess.Layout{Format: postprocess.FormatRows, Classes: 2}
	p.Transform = func(blob []float32) []float32 {
		red := blob[4*8+4]
		return []float32{0.5, 0.5, 0.25, 0.25, 1, red, 0}
	}

	det, err := inference.NewDetectorBuilder().
		WithLogger(zaptest.NewLogger(t)).
		WithPredictor(p).
		WithNetwork("tiny.cfg", "tiny.weights").
		WithLabels([]string{"person", "car"}).
		WithParams(postprocess.Params{Confidence: 0.1, NMS: 0.4}).
		Build()
	require.NoError(t, err)
	defer det.Close()

	src, err := capture.OpenDirectory(dir, false)
	require.NoError(t, err)

	var got []emission
	overlay := &capture.Overlay{Labels: det.Labels()}
	pl, err := pipeline.New(pipeline.Options[capture.Frame]{
		Source: src,
		Preprocess: func(f capture.Frame) ([]float32, error) {
			return det.Preprocess(f.Mat)
		},
		Predictor: p,
		PostProcess: func(f capture.Frame) ([]postprocess.Detection, error) {
			return det.Decode(f.Width(), f.Height())
		},
		Sink: pipeline.SinkFunc[capture.Frame](func(ctx context.Context, f capture.Frame, dets []postprocess.Detection) error {
			got = append(got, emission{index: f.Index, dets: dets})
			return overlay.Emit(ctx, f, dets)
		}),
		Drain:  true,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, pl.Run(context.Background()))

	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, i, e.index)
		require.Len(t, e.dets, 1)
		d := e.dets[0]
		assert.Equal(t, "person", d.Label(det.Labels()))
		assert.InDelta(t, float32(50*(i+1))/255, d.Probability, 1e-3, "frame %d", i)
		assert.InDelta(t, 16, d.X, 0.5)
		assert.InDelta(t, 8, d.Y, 0.5)
	}
	assert.Equal(t, int64(3), p.Calls())
	assert.False(t, p.Overlapped())
	assert.NoError(t, overlay.Close())
}

// TestFrameGenerator checks the synthetic frames used by the pipeline tests.
func TestFrameGenerator(t *testing.T) {
	g := NewMockFrameGenerator(20, 10)

	m := g.GenerateColorFrame(1, 2, 3)
	defer m.Close()
	assert.Equal(t, 20, m.Cols())
	assert.Equal(t, 10, m.Rows())
	px := m.GetVecbAt(5, 5)
	assert.Equal(t, []uint8{1, 2, 3}, []uint8{px[0], px[1], px[2]})

	obj := g.GenerateObjectFrame(2, 2, 4)
	defer obj.Close()
	assert.NotEqual(t, m.GetVecbAt(0, 0), obj.GetVecbAt(3, 3))
}
