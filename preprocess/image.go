package preprocess

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/images"
)

// imageChannels is the channel count exposed by decoded Go images (blue, green, red).
const imageChannels = 3

// ImagePreprocessor is the pure-Go counterpart of Preprocessor for decoded
// image.Image values. It applies the same letterbox geometry and normalization
// and resizes with bilinear interpolation.
//
// Unlike Preprocessor it allocates one resized image per call, since
// nfnt/resize has no resize-into-destination API. Use Preprocessor for
// per-frame work.
type ImagePreprocessor struct {
	cfg  Config
	blob []float32
}

// NewImagePreprocessor validates cfg and allocates the blob. The channel map
// must describe three channels.
func NewImagePreprocessor(cfg Config) (*ImagePreprocessor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Channels() != imageChannels {
		return nil, errors.Wrapf(ErrChannelMismatch, "decoded images have %d channels, configured %d", imageChannels, cfg.Channels())
	}
	return &ImagePreprocessor{cfg: cfg, blob: make([]float32, cfg.BlobSize())}, nil
}

// Config returns the effective configuration.
func (p *ImagePreprocessor) Config() Config { return p.cfg }

// Run preprocesses a single image into the first slot of the blob.
func (p *ImagePreprocessor) Run(img image.Image) ([]float32, error) {
	return p.RunBatch([]image.Image{img})
}

// RunBatch preprocesses imgs into consecutive slots of the blob.
//
// Returns:
//   - []float32: The blob, owned by the preprocessor and valid until the next call.
//   - error: ErrBatchOverflow, ErrDepth or ErrEmptyImage.
func (p *ImagePreprocessor) RunBatch(imgs []image.Image) ([]float32, error) {
	if len(imgs) > p.cfg.Batch {
		return nil, errors.Wrapf(ErrBatchOverflow, "got %d images, batch is %d", len(imgs), p.cfg.Batch)
	}

	slot := p.cfg.SlotSize()
	for i, img := range imgs {
		if err := p.toBlob(img, p.blob[i*slot:(i+1)*slot]); err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
	}
	return p.blob, nil
}

func (p *ImagePreprocessor) toBlob(img image.Image, dst []float32) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptyImage
	}
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return errors.Wrapf(ErrDepth, "%T", img)
	}

	w, h := p.cfg.Width, p.cfg.Height
	plane := p.cfg.PlaneSize()
	b := img.Bounds()

	layout := images.ComputeLetterbox(b.Dx(), b.Dy(), w, h)
	for _, border := range layout.Borders {
		for c := range p.cfg.ChannelMap {
			out := dst[c*plane : (c+1)*plane]
			for y := border.Y1; y < border.Y2; y++ {
				row := out[y*w : (y+1)*w]
				for x := border.X1; x < border.X2; x++ {
					row[x] = greyLevel
				}
			}
		}
	}

	resized := images.Resize(img, layout.Image.Width(), layout.Image.Height())
	rb := resized.Bounds()
	for y := 0; y < layout.Image.Height(); y++ {
		for x := 0; x < layout.Image.Width(); x++ {
			px := images.Channels8(resized, rb.Min.X+x, rb.Min.Y+y)
			off := (layout.Image.Y1+y)*w + layout.Image.X1 + x
			for i, ch := range p.cfg.ChannelMap {
				dst[i*plane+off] = float32(px[ch]) / 255
			}
		}
	}
	return nil
}
