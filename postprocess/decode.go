package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/images"
)

func logistic(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// decode fills c with one candidate per anchor location of the given batch entry.
// Class probabilities not above the confidence threshold are stored as zero.
func decode(c *candidates, raw []float32, layout Layout, params Params) error {
	size := layout.OutputSize(len(raw))
	if size == 0 {
		return errors.Wrap(ErrOutputSize, "layout describes an empty output")
	}
	if len(raw) < size {
		return errors.Wrapf(ErrOutputSize, "need %d values, got %d", size, len(raw))
	}
	if entries := len(raw) / size; params.BatchIndex < 0 || params.BatchIndex >= entries {
		return errors.Wrapf(ErrBatchIndex, "index %d with %d entries", params.BatchIndex, entries)
	}
	out := raw[params.BatchIndex*size : (params.BatchIndex+1)*size]

	n := layout.Candidates(len(raw))
	c.reset(n, layout.Classes)

	switch layout.Format {
	case FormatRegion:
		decodeRegion(c, out, layout, params)
	case FormatRows:
		decodeRows(c, out, layout, params)
	default:
		return errors.Wrapf(ErrInvalidLayout, "unknown format %q", layout.Format)
	}

	for i := range c.boxes {
		c.boxes[i] = place(c.boxes[i], layout, params)
	}
	return nil
}

// decodeRegion reads a YOLOv2 region grid. Candidate n*area+i is anchor n of
// grid cell i; entry e of that candidate sits at n*area*stride + e*area + i.
func decodeRegion(c *candidates, out []float32, layout Layout, params Params) {
	area := layout.GridWidth * layout.GridHeight
	stride := layout.Stride()
	coords := layout.coords()
	gw, gh := float32(layout.GridWidth), float32(layout.GridHeight)

	activate := func(v float32) float32 {
		if layout.Activate {
			return logistic(v)
		}
		return v
	}

	for i := 0; i < area; i++ {
		row, col := i/layout.GridWidth, i%layout.GridWidth
		for n := 0; n < layout.Anchors; n++ {
			base := n * area * stride
			entry := func(e int) float32 { return out[base+e*area+i] }
			idx := n*area + i

			c.boxes[idx] = images.Box{
				X: (float32(col) + activate(entry(0))) / gw,
				Y: (float32(row) + activate(entry(1))) / gh,
				W: math32.Exp(entry(2)) * layout.Biases[2*n] / gw,
				H: math32.Exp(entry(3)) * layout.Biases[2*n+1] / gh,
			}

			scale := float32(1)
			if !layout.Background {
				scale = activate(entry(coords))
			}

			probs := c.prob(idx)
			for j := range probs {
				probs[j] = entry(coords + 1 + j)
			}
			if layout.Activate {
				softmax(probs)
			}
			c.best[idx] = threshold(probs, scale, params.Confidence)
		}
	}
}

// decodeRows reads one candidate per row: box, objectness, class scores.
func decodeRows(c *candidates, out []float32, layout Layout, params Params) {
	stride := layout.Stride()
	coords := layout.coords()

	for idx := range c.boxes {
		row := out[idx*stride : (idx+1)*stride]
		c.boxes[idx] = images.Box{X: row[0], Y: row[1], W: row[2], H: row[3]}

		scale := float32(1)
		if layout.ConditionalScores {
			scale = row[coords]
		}
		probs := c.prob(idx)
		copy(probs, row[coords+1:])
		c.best[idx] = threshold(probs, scale, params.Confidence)
	}
}

// threshold scales probs in place, zeroes those not above thresh and returns the maximum.
func threshold(probs []float32, scale, thresh float32) float32 {
	var best float32
	for j, p := range probs {
		p *= scale
		if p <= thresh {
			p = 0
		}
		probs[j] = p
		best = math32.Max(best, p)
	}
	return best
}

func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	largest := v[0]
	for _, x := range v[1:] {
		largest = math32.Max(largest, x)
	}
	var sum float32
	for i, x := range v {
		v[i] = math32.Exp(x - largest)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// place moves a network-relative box into the caller's coordinate system. With
// no output size the box stays relative to the network input. Otherwise the
// letterbox is undone using the output size as the source aspect ratio and the
// box is scaled to output pixels.
func place(b images.Box, layout Layout, params Params) images.Box {
	if params.Relative() {
		return b
	}
	b = images.Unletterbox(b, params.OutputWidth, params.OutputHeight, layout.NetWidth, layout.NetHeight)
	w, h := float32(params.OutputWidth), float32(params.OutputHeight)
	return images.Box{X: b.X * w, Y: b.Y * h, W: b.W * w, H: b.H * h}
}
