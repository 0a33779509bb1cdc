package images

import "github.com/chewxy/math32"

// Letterbox describes how a source image is fitted into a fixed network canvas
// while keeping its aspect ratio. Image is the region the resized source
// occupies; Borders holds the grey padding regions, top/left first. When the
// aspect ratio already matches, Image covers the whole canvas and Borders is
// empty.
type Letterbox struct {
	Canvas  Rect
	Image   Rect
	Borders []Rect
}

// Padded reports whether the letterbox needs grey borders.
func (l Letterbox) Padded() bool { return len(l.Borders) > 0 }

// AspectMatches reports whether a srcW x srcH image has the same aspect ratio
// as a dstW x dstH canvas, using exact integer cross multiplication.
func AspectMatches(srcW, srcH, dstW, dstH int) bool {
	return srcH*dstW == srcW*dstH
}

// ComputeLetterbox returns the letterbox geometry for fitting a srcW x srcH image
// into a dstW x dstH canvas.
//
// A relatively wider input fills the full canvas width and is centered
// vertically below a border of ceil((dstH-imageH)/2) rows. A relatively
// taller input is the symmetric case on width. The second border takes
// whatever is left after the image, so when the remaining space is odd it is
// one row or column thinner than the first and the three regions tile the
// canvas exactly.
//
// Arguments:
//   - srcW, srcH: Source image dimensions.
//   - dstW, dstH: Target canvas dimensions.
//
// Returns:
//   - Letterbox: The canvas, image and border rectangles.
func ComputeLetterbox(srcW, srcH, dstW, dstH int) Letterbox {
	canvas := NewRect(0, 0, dstW, dstH)
	if srcW <= 0 || srcH <= 0 || AspectMatches(srcW, srcH, dstW, dstH) {
		return Letterbox{Canvas: canvas, Image: canvas}
	}

	if srcH*dstW < srcW*dstH {
		imageH := max((srcH*dstW)/srcW, 1)
		borderH := int(math32.Ceil(float32(dstH-imageH) / 2))
		return Letterbox{
			Canvas: canvas,
			Image:  NewRect(0, borderH, dstW, imageH),
			Borders: nonEmpty(
				NewRect(0, 0, dstW, borderH),
				NewRect(0, borderH+imageH, dstW, dstH-borderH-imageH),
			),
		}
	}

	imageW := max((srcW*dstH)/srcH, 1)
	borderW := int(math32.Ceil(float32(dstW-imageW) / 2))
	return Letterbox{
		Canvas: canvas,
		Image:  NewRect(borderW, 0, imageW, dstH),
		Borders: nonEmpty(
			NewRect(0, 0, borderW, dstH),
			NewRect(borderW+imageW, 0, dstW-borderW-imageW, dstH),
		),
	}
}

func nonEmpty(rects ...Rect) []Rect {
	out := rects[:0]
	for _, r := range rects {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// Unletterbox maps a box expressed relative to the network canvas back to a box
// relative to the source image that was letterboxed into it. srcW and srcH only
// need the source aspect ratio; when they are zero the box is returned as is.
func Unletterbox(b Box, srcW, srcH, netW, netH int) Box {
	if srcW <= 0 || srcH <= 0 || netW <= 0 || netH <= 0 {
		return b
	}

	newW, newH := netW, netH
	if float32(netW)/float32(srcW) < float32(netH)/float32(srcH) {
		newH = (srcH * netW) / srcW
	} else {
		newW = (srcW * netH) / srcH
	}

	fnW, fnH := float32(netW), float32(netH)
	return Box{
		X: (b.X - float32(netW-newW)/2/fnW) / (float32(newW) / fnW),
		Y: (b.Y - float32(netH-newH)/2/fnH) / (float32(newH) / fnH),
		W: b.W * fnW / float32(newW),
		H: b.H * fnH / float32(newH),
	}
}
