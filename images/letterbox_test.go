package images

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coverage counts how many of the given rectangles cover every canvas pixel.
func coverage(w, h int, rects ...Rect) []int {
	counts := make([]int, w*h)
	for _, r := range rects {
		for y := r.Y1; y < r.Y2; y++ {
			for x := r.X1; x < r.X2; x++ {
				counts[y*w+x]++
			}
		}
	}
	return counts
}

// TestComputeLetterbox_Tiling checks that the image region and the borders
// tile the canvas without gaps or overlaps for a spread of aspect ratios.
func TestComputeLetterbox_Tiling(t *testing.T) {
	sources := [][2]int{
		{640, 480}, {1920, 1080}, {480, 640}, {1080, 1920},
		{1, 1}, {3, 1}, {1, 3}, {1000, 1}, {1, 1000},
		{617, 411}, {411, 617}, {416, 416}, {832, 832},
	}
	targets := [][2]int{{416, 416}, {608, 352}, {320, 321}, {7, 5}}

	for _, dst := range targets {
		for _, src := range sources {
			t.Run(fmt.Sprintf("%dx%d_into_%dx%d", src[0], src[1], dst[0], dst[1]), func(t *testing.T) {
				lb := ComputeLetterbox(src[0], src[1], dst[0], dst[1])

				require.False(t, lb.Image.Empty(), "image region must not be empty")
				assert.Equal(t, NewRect(0, 0, dst[0], dst[1]), lb.Canvas)

				counts := coverage(dst[0], dst[1], append([]Rect{lb.Image}, lb.Borders...)...)
				for i, c := range counts {
					if !assert.Equalf(t, 1, c, "pixel (%d,%d) covered %d times", i%dst[0], i/dst[0], c) {
						return
					}
				}

				assert.Equal(t, !AspectMatches(src[0], src[1], dst[0], dst[1]), lb.Padded())
			})
		}
	}
}

// TestComputeLetterbox_AspectPreserved verifies the image region keeps the
// source aspect ratio to within one pixel of rounding.
func TestComputeLetterbox_AspectPreserved(t *testing.T) {
	sources := [][2]int{{640, 480}, {1920, 1080}, {480, 640}, {617, 411}, {300, 1200}}

	for _, src := range sources {
		lb := ComputeLetterbox(src[0], src[1], 416, 416)

		// Scale the source into the region along the full-size dimension and
		// compare the other dimension.
		if lb.Image.Width() == 416 {
			expected := float64(src[1]) * 416 / float64(src[0])
			assert.InDelta(t, expected, float64(lb.Image.Height()), 1.0, "source %v", src)
		} else {
			expected := float64(src[0]) * 416 / float64(src[1])
			assert.InDelta(t, expected, float64(lb.Image.Width()), 1.0, "source %v", src)
		}
	}
}

// TestComputeLetterbox_Geometry pins the exact rectangles for a common webcam frame.
func TestComputeLetterbox_Geometry(t *testing.T) {
	lb := ComputeLetterbox(640, 480, 416, 416)

	// 480*416/640 = 312 rows of image, 52 rows of border on each side.
	assert.Equal(t, NewRect(0, 52, 416, 312), lb.Image)
	require.Len(t, lb.Borders, 2)
	assert.Equal(t, NewRect(0, 0, 416, 52), lb.Borders[0])
	assert.Equal(t, NewRect(0, 364, 416, 52), lb.Borders[1])

	tall := ComputeLetterbox(480, 640, 416, 416)
	assert.Equal(t, NewRect(52, 0, 312, 416), tall.Image)

	// 617x411 into 416: image 277 rows, 139 rows left, top border takes the extra row.
	odd := ComputeLetterbox(617, 411, 416, 416)
	assert.Equal(t, 277, odd.Image.Height())
	assert.Equal(t, 70, odd.Borders[0].Height())
	assert.Equal(t, 69, odd.Borders[1].Height())
}

// TestUnletterbox maps the letterboxed image region back onto the full source.
func TestUnletterbox(t *testing.T) {
	lb := ComputeLetterbox(640, 480, 416, 416)

	// A box covering exactly the image region in network-relative coordinates.
	in := Box{
		X: 0.5,
		Y: 0.5,
		W: 1,
		H: float32(lb.Image.Height()) / 416,
	}
	out := Unletterbox(in, 640, 480, 416, 416)
	assert.InDelta(t, 0.5, out.X, 1e-5)
	assert.InDelta(t, 0.5, out.Y, 1e-5)
	assert.InDelta(t, 1.0, out.W, 1e-5)
	assert.InDelta(t, 1.0, out.H, 1e-5)

	// The top edge of the image region maps to the top of the source.
	top := Unletterbox(Box{Y: float32(lb.Image.Y1) / 416}, 640, 480, 416, 416)
	assert.InDelta(t, 0.0, top.Y, 1e-5)

	assert.Equal(t, in, Unletterbox(in, 0, 0, 416, 416), "unknown source size leaves the box untouched")
}
