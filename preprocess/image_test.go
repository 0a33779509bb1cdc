package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// TestImagePreprocessor_Letterbox mirrors the OpenCV path on decoded images.
func TestImagePreprocessor_Letterbox(t *testing.T) {
	const w, h = 4, 4
	p, err := NewImagePreprocessor(Config{Width: w, Height: h, Batch: 1})
	require.NoError(t, err)

	blob, err := p.Run(solidImage(8, 4, color.RGBA{R: 255, G: 51, B: 0, A: 255}))
	require.NoError(t, err)
	require.Len(t, blob, w*h*3)

	want := [3]float32{1.0, 0.2, 0.0}
	for c := 0; c < 3; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := blob[c*w*h+y*w+x]
				if y == 0 || y == 3 {
					assert.Equal(t, float32(0.5), v)
				} else {
					assert.InDelta(t, want[c], v, 1e-5)
				}
			}
		}
	}
}

// TestImagePreprocessor_ChannelRemap checks that a blue pixel lands in the last plane.
func TestImagePreprocessor_ChannelRemap(t *testing.T) {
	p, err := NewImagePreprocessor(Config{Width: 1, Height: 1, Batch: 1})
	require.NoError(t, err)

	blob, err := p.Run(solidImage(1, 1, color.RGBA{B: 255, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, blob)
}

// TestImagePreprocessor_Rejects covers batch, depth and channel configuration errors.
func TestImagePreprocessor_Rejects(t *testing.T) {
	p, err := NewImagePreprocessor(Config{Width: 2, Height: 2, Batch: 1})
	require.NoError(t, err)

	img := solidImage(2, 2, color.RGBA{A: 255})
	_, err = p.RunBatch([]image.Image{img, img})
	assert.ErrorIs(t, err, ErrBatchOverflow)

	_, err = p.Run(image.NewRGBA64(image.Rect(0, 0, 2, 2)))
	assert.ErrorIs(t, err, ErrDepth)

	_, err = p.Run(image.NewRGBA(image.Rectangle{}))
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = NewImagePreprocessor(Config{Width: 2, Height: 2, Batch: 1, ChannelMap: []int{0}})
	assert.ErrorIs(t, err, ErrChannelMismatch)
}
