package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestResize checks the output size and that same-size inputs pass through.
func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 48))

	out := Resize(src, 32, 24)
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, 24, out.Bounds().Dy())

	assert.Same(t, src, Resize(src, 64, 48).(*image.RGBA))
}

// TestChannels8 verifies pixels come back in blue, green, red order.
func TestChannels8(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgba.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	assert.Equal(t, [3]uint8{30, 20, 10}, Channels8(rgba, 0, 0))

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 200})
	assert.Equal(t, [3]uint8{200, 200, 200}, Channels8(gray, 0, 0))
}
