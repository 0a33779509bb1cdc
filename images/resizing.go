package images

import (
	"image"

	"github.com/nfnt/resize"
)

// Resize scales img to exactly width x height with bilinear interpolation.
// Images that already have the requested size are returned unchanged.
//
// Arguments:
//   - img: The source image.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//
// Returns:
//   - image.Image: The resized image.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear)
}

// Channels8 reads the pixel at (x, y) as 8-bit blue, green and red values.
// The order matches what OpenCV delivers for captured frames so the same
// channel map works for both image sources.
func Channels8(img image.Image, x, y int) [3]uint8 {
	switch src := img.(type) {
	case *image.RGBA:
		i := src.PixOffset(x, y)
		return [3]uint8{src.Pix[i+2], src.Pix[i+1], src.Pix[i]}
	case *image.NRGBA:
		i := src.PixOffset(x, y)
		return [3]uint8{src.Pix[i+2], src.Pix[i+1], src.Pix[i]}
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]uint8{uint8(b >> 8), uint8(g >> 8), uint8(r >> 8)}
}
