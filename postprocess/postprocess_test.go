package postprocess

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row builds one FormatRows candidate: box, objectness and class scores.
func row(x, y, w, h, obj float32, scores ...float32) []float32 {
	return append([]float32{x, y, w, h, obj}, scores...)
}

func concat(rows ...[]float32) []float32 {
	var out []float32
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func rowsLayout(classes int) Layout {
	return Layout{Format: FormatRows, Classes: classes, NetWidth: 416, NetHeight: 416}
}

var labels3 = []string{"person", "bicycle", "car"}

// TestDetect_RowsOrder checks relative output and that decode order is kept
// rather than sorting by confidence.
func TestDetect_RowsOrder(t *testing.T) {
	raw := concat(
		row(0.1, 0.1, 0.1, 0.1, 1, 0.3, 0, 0),
		row(0.5, 0.5, 0.1, 0.1, 1, 0, 0.9, 0),
		row(0.9, 0.9, 0.1, 0.1, 1, 0, 0, 0.6),
	)

	dets, err := Detect(raw, rowsLayout(3), Params{Confidence: 0.2}, labels3)
	require.NoError(t, err)
	require.Len(t, dets, 3)

	assert.Equal(t, []int{0, 1, 2}, []int{dets[0].LabelIndex, dets[1].LabelIndex, dets[2].LabelIndex})
	assert.Equal(t, Detection{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1, Probability: 0.9, LabelIndex: 1}, dets[1])
	assert.Equal(t, "bicycle", dets[1].Label(labels3))
}

// TestDetect_ThresholdBoundary verifies the strict greater-than semantics.
func TestDetect_ThresholdBoundary(t *testing.T) {
	const thresh = float32(0.5)
	above := math32.Nextafter(thresh, 1)

	raw := concat(
		row(0.2, 0.2, 0.1, 0.1, 1, thresh),
		row(0.8, 0.8, 0.1, 0.1, 1, above),
	)

	dets, err := Detect(raw, rowsLayout(1), Params{Confidence: thresh}, nil)
	require.NoError(t, err)
	require.Len(t, dets, 1, "a probability equal to the threshold is excluded")
	assert.Equal(t, above, dets[0].Probability)
}

// TestDetect_NMS suppresses overlapping boxes of the same class but keeps the
// suppressed entry out of the result only through its zeroed probability.
func TestDetect_NMS(t *testing.T) {
	raw := concat(
		row(0.50, 0.50, 0.2, 0.2, 1, 0.8, 0),
		row(0.52, 0.50, 0.2, 0.2, 1, 0.9, 0),
		row(0.51, 0.50, 0.2, 0.2, 1, 0, 0.7),
		row(0.10, 0.10, 0.1, 0.1, 1, 0.6, 0),
	)
	layout := rowsLayout(2)

	t.Run("per class", func(t *testing.T) {
		dets, err := Detect(raw, layout, Params{Confidence: 0.2, NMS: 0.4}, nil)
		require.NoError(t, err)
		require.Len(t, dets, 3)
		assert.Equal(t, float32(0.9), dets[0].Probability, "the stronger overlapping box survives")
		assert.Equal(t, 1, dets[1].LabelIndex, "other classes are not suppressed")
		assert.Equal(t, float32(0.6), dets[2].Probability)
	})

	t.Run("objectness", func(t *testing.T) {
		dets, err := Detect(raw, layout, Params{Confidence: 0.2, NMS: 0.4, NMSMode: NMSObjectness}, nil)
		require.NoError(t, err)
		require.Len(t, dets, 2)
		assert.Equal(t, float32(0.9), dets[0].Probability)
		assert.Equal(t, float32(0.6), dets[1].Probability)
	})

	t.Run("disabled", func(t *testing.T) {
		dets, err := Detect(raw, layout, Params{Confidence: 0.2}, nil)
		require.NoError(t, err)
		assert.Len(t, dets, 4)
	})
}

// TestSuppress_Idempotent runs suppression twice over a dense synthetic set
// and expects no change the second time.
func TestSuppress_Idempotent(t *testing.T) {
	const n, classes = 60, 3

	raw := make([]float32, 0, n*(5+classes))
	for i := 0; i < n; i++ {
		// Deterministic spread of overlapping boxes and scores.
		x := 0.3 + 0.01*float32(i%13)
		y := 0.3 + 0.015*float32(i%7)
		scores := make([]float32, classes)
		scores[i%classes] = 0.3 + 0.01*float32((i*37)%61)
		raw = append(raw, row(x, y, 0.2, 0.2, 1, scores...)...)
	}

	for _, mode := range []NMSMode{NMSPerClass, NMSObjectness} {
		t.Run(string(mode), func(t *testing.T) {
			var c candidates
			require.NoError(t, decode(&c, raw, rowsLayout(classes), Params{Confidence: 0.2}))

			suppress(&c, 0.45, mode)
			once := append([]float32(nil), c.probs...)

			suppress(&c, 0.45, mode)
			assert.Equal(t, once, c.probs)
		})
	}
}

// TestDetect_NMSChain keeps ranking after a candidate suppressed earlier in
// the same pass: the second pair is suppressed even though the zeroed box of
// the first pair ranks above it.
func TestDetect_NMSChain(t *testing.T) {
	raw := concat(
		row(0.20, 0.20, 0.2, 0.2, 1, 0.9),
		row(0.21, 0.20, 0.2, 0.2, 1, 0.8),
		row(0.70, 0.70, 0.2, 0.2, 1, 0.7),
		row(0.71, 0.70, 0.2, 0.2, 1, 0.6),
	)
	params := Params{Confidence: 0.2, NMS: 0.45}

	dets, err := Detect(raw, rowsLayout(1), params, nil)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, float32(0.9), dets[0].Probability)
	assert.Equal(t, float32(0.7), dets[1].Probability)

	for _, mode := range []NMSMode{NMSPerClass, NMSObjectness} {
		t.Run(string(mode), func(t *testing.T) {
			var c candidates
			require.NoError(t, decode(&c, raw, rowsLayout(1), Params{Confidence: 0.2}))

			suppress(&c, 0.45, mode)
			assert.Equal(t, []float32{0.9, 0, 0.7, 0}, c.probs)

			suppress(&c, 0.45, mode)
			assert.Equal(t, []float32{0.9, 0, 0.7, 0}, c.probs, "a second pass changes nothing")
		})
	}
}

// TestDetect_LabelOutOfRange fails instead of reporting an unnamed class.
func TestDetect_LabelOutOfRange(t *testing.T) {
	raw := concat(row(0.5, 0.5, 0.1, 0.1, 1, 0, 0, 0.9))

	_, err := Detect(raw, rowsLayout(3), Params{Confidence: 0.2}, []string{"person", "bicycle"})
	assert.ErrorIs(t, err, ErrLabelOutOfRange)

	dets, err := Detect(raw, rowsLayout(3), Params{Confidence: 0.2}, nil)
	require.NoError(t, err, "no label list disables the check")
	assert.Len(t, dets, 1)
}

// TestDetect_AbsoluteCoordinates undoes the letterbox of a 640x480 frame in a
// 416x416 network.
func TestDetect_AbsoluteCoordinates(t *testing.T) {
	// The letterboxed image occupies 312 of the 416 rows.
	raw := concat(row(0.5, 0.5, 1, 312.0/416.0, 1, 0.9))

	dets, err := Detect(raw, rowsLayout(1), Params{Confidence: 0.2, OutputWidth: 640, OutputHeight: 480}, nil)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.InDelta(t, 320, d.X, 1e-3)
	assert.InDelta(t, 240, d.Y, 1e-3)
	assert.InDelta(t, 640, d.Width, 1e-3)
	assert.InDelta(t, 480, d.Height, 1e-3)
}

// TestDetect_Region decodes a hand-built 2x1 region grid with one anchor.
func TestDetect_Region(t *testing.T) {
	layout := Layout{
		Format:     FormatRegion,
		GridWidth:  2,
		GridHeight: 1,
		Anchors:    1,
		Classes:    2,
		Biases:     []float32{2, 1},
		NetWidth:   416,
		NetHeight:  416,
	}
	// Planes of two cells each: x, y, w, h, objectness, class 0, class 1.
	raw := []float32{
		0.5, 0.25,
		0.5, 0.5,
		0, 0,
		0, 0,
		0.9, 0.1,
		1.0, 0.5,
		0, 0.5,
	}

	dets, err := Detect(raw, layout, Params{Confidence: 0.2}, nil)
	require.NoError(t, err)
	require.Len(t, dets, 1, "the second cell's scaled probability stays below the threshold")

	d := dets[0]
	assert.InDelta(t, 0.25, d.X, 1e-6)
	assert.InDelta(t, 0.5, d.Y, 1e-6)
	assert.InDelta(t, 1.0, d.Width, 1e-6)
	assert.InDelta(t, 1.0, d.Height, 1e-6)
	assert.InDelta(t, 0.9, d.Probability, 1e-6)
	assert.Equal(t, 0, d.LabelIndex)
}

// TestDetect_RegionActivate applies logistic and softmax for raw exports.
func TestDetect_RegionActivate(t *testing.T) {
	layout := Layout{
		Format:     FormatRegion,
		GridWidth:  1,
		GridHeight: 1,
		Anchors:    1,
		Classes:    2,
		Biases:     []float32{1, 1},
		Activate:   true,
	}
	// x=y=0 -> 0.5, objectness 10 -> ~1, class logits equal -> 0.5 each.
	raw := []float32{0, 0, 0, 0, 10, 3, 3}

	dets, err := Detect(raw, layout, Params{Confidence: 0.2}, nil)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.5, dets[0].X, 1e-6)
	assert.InDelta(t, 0.5, dets[0].Probability, 1e-3)
}

// TestDetect_Batches selects batch entries and reports bad indices and sizes.
func TestDetect_Batches(t *testing.T) {
	layout := rowsLayout(1)
	layout.Rows = 1
	raw := concat(
		row(0.1, 0.1, 0.1, 0.1, 1, 0.9),
		row(0.7, 0.7, 0.1, 0.1, 1, 0.8),
	)

	dets, err := Detect(raw, layout, Params{Confidence: 0.2, BatchIndex: 1}, nil)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, float32(0.7), dets[0].X)

	_, err = Detect(raw, layout, Params{Confidence: 0.2, BatchIndex: 2}, nil)
	assert.ErrorIs(t, err, ErrBatchIndex)

	_, err = Detect(raw, layout, Params{Confidence: 0.2, BatchIndex: -1}, nil)
	assert.ErrorIs(t, err, ErrBatchIndex)

	layout.Rows = 3
	_, err = Detect(raw, layout, Params{Confidence: 0.2}, nil)
	assert.ErrorIs(t, err, ErrOutputSize)
}

// TestLayout_Validate rejects layouts that cannot be decoded.
func TestLayout_Validate(t *testing.T) {
	assert.ErrorIs(t, Layout{Format: FormatRows}.Validate(), ErrInvalidLayout)
	assert.ErrorIs(t, Layout{Format: "ssd", Classes: 1}.Validate(), ErrInvalidLayout)
	assert.ErrorIs(t, Layout{Format: FormatRegion, Classes: 1, GridWidth: 1, GridHeight: 1, Anchors: 2, Biases: []float32{1, 1}}.Validate(), ErrInvalidLayout)
	assert.NoError(t, rowsLayout(80).Validate())
	assert.Equal(t, 85, rowsLayout(80).Stride())
}

// TestPostProcessor_Copy exercises the fixed-capacity copy and state replacement.
func TestPostProcessor_Copy(t *testing.T) {
	pp, err := NewPostProcessor(rowsLayout(3), labels3)
	require.NoError(t, err)

	raw := concat(
		row(0.1, 0.1, 0.1, 0.1, 1, 0.9, 0, 0),
		row(0.9, 0.9, 0.1, 0.1, 1, 0, 0.8, 0),
	)
	require.NoError(t, pp.Process(raw, Params{Confidence: 0.2}))
	assert.Equal(t, 2, pp.NumDetections())

	small := make([]Detection, 1)
	n, err := pp.CopyDetections(small)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Zero(t, n)
	assert.Equal(t, Detection{}, small[0], "nothing is copied on failure")

	buf := make([]Detection, 4)
	n, err = pp.CopyDetections(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, pp.Detections(), buf[:n])

	bad := concat(row(0.5, 0.5, 0.1, 0.1, 1, 0, 0, 0.9), row(0.5, 0.5, 0.1, 0.1, 1, 0, 0, 0))
	pp2, err := NewPostProcessor(rowsLayout(3), labels3[:2])
	require.NoError(t, err)
	assert.ErrorIs(t, pp2.Process(bad, Params{Confidence: 0.2}), ErrLabelOutOfRange)
	assert.Zero(t, pp2.NumDetections())
}
