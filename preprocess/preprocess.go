package preprocess

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/images"
)

// greyLevel is the normalized value painted into letterbox borders.
const greyLevel = 0.5

// matType builds an OpenCV type from a depth and a channel count, like CV_MAKETYPE.
func matType(depth gocv.MatType, channels int) gocv.MatType {
	return depth + gocv.MatType((channels-1)*8)
}

// regions caches the letterbox layout for the last seen input size, together
// with the Mat headers pointing into the scratch images.
type regions struct {
	srcW, srcH int
	layout     images.Letterbox
	image8     gocv.Mat
	imageF     gocv.Mat
}

func (r *regions) close() {
	if r == nil {
		return
	}
	r.image8.Close()
	r.imageF.Close()
}

// Preprocessor converts OpenCV frames into a network blob. It owns an 8-bit and
// a float scratch image of the network size and the blob itself, all reused
// across calls.
//
// A Preprocessor is not safe for concurrent use.
type Preprocessor struct {
	cfg     Config
	blob    []float32
	resized gocv.Mat
	float   gocv.Mat
	cache   *regions
	single  [1]gocv.Mat
}

// New validates cfg and allocates the scratch buffers.
//
// Arguments:
//   - cfg: The target geometry. An empty channel map selects DefaultChannelMap.
//
// Returns:
//   - *Preprocessor: A ready preprocessor. Call Close to release the scratch Mats.
//   - error: ErrInvalidConfig if the config is unusable.
func New(cfg Config) (*Preprocessor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := cfg.Channels()
	return &Preprocessor{
		cfg:     cfg,
		blob:    make([]float32, cfg.BlobSize()),
		resized: gocv.NewMatWithSize(cfg.Height, cfg.Width, matType(gocv.MatTypeCV8U, c)),
		float:   gocv.NewMatWithSize(cfg.Height, cfg.Width, matType(gocv.MatTypeCV32F, c)),
	}, nil
}

// Config returns the effective configuration.
func (p *Preprocessor) Config() Config { return p.cfg }

// Blob returns the blob filled by the last run.
func (p *Preprocessor) Blob() []float32 { return p.blob }

// Run preprocesses a single image into the first slot of the blob.
func (p *Preprocessor) Run(img gocv.Mat) ([]float32, error) {
	p.single[0] = img
	return p.RunBatch(p.single[:])
}

// RunBatch preprocesses imgs into consecutive slots of the blob. Slots beyond
// len(imgs) keep their previous contents.
//
// Arguments:
//   - imgs: Up to Batch 8-bit images with the configured channel count.
//
// Returns:
//   - []float32: The blob, owned by the preprocessor and valid until the next call.
//   - error: ErrBatchOverflow, ErrChannelMismatch, ErrDepth or ErrEmptyImage.
func (p *Preprocessor) RunBatch(imgs []gocv.Mat) ([]float32, error) {
	if len(imgs) > p.cfg.Batch {
		return nil, errors.Wrapf(ErrBatchOverflow, "got %d images, batch is %d", len(imgs), p.cfg.Batch)
	}

	slot := p.cfg.SlotSize()
	for i := range imgs {
		if err := p.toBlob(imgs[i], p.blob[i*slot:(i+1)*slot]); err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
	}
	return p.blob, nil
}

func (p *Preprocessor) check(img gocv.Mat) error {
	if img.Empty() {
		return ErrEmptyImage
	}
	if img.Channels() != p.cfg.Channels() {
		return errors.Wrapf(ErrChannelMismatch, "image has %d, configured %d", img.Channels(), p.cfg.Channels())
	}
	if img.Type()&7 != gocv.MatTypeCV8U {
		return errors.Wrapf(ErrDepth, "mat type %d", int(img.Type()))
	}
	return nil
}

// toBlob letterboxes, normalizes and planarizes one image into dst.
func (p *Preprocessor) toBlob(img gocv.Mat, dst []float32) error {
	if err := p.check(img); err != nil {
		return err
	}

	const scale = float32(1.0 / 255.0)
	inW, inH := img.Cols(), img.Rows()

	if inW == p.cfg.Width && inH == p.cfg.Height {
		img.ConvertToWithParams(&p.float, gocv.MatTypeCV32F, scale, 0)
	} else {
		r := p.regions(inW, inH)
		for _, b := range r.layout.Borders {
			border := p.float.Region(b.Image())
			border.SetTo(gocv.NewScalar(greyLevel, greyLevel, greyLevel, greyLevel))
			border.Close()
		}

		if inW == r.layout.Image.Width() && inH == r.layout.Image.Height() {
			img.ConvertToWithParams(&r.imageF, gocv.MatTypeCV32F, scale, 0)
		} else {
			size := image.Pt(r.layout.Image.Width(), r.layout.Image.Height())
			gocv.Resize(img, &r.image8, size, 0, 0, gocv.InterpolationLinear)
			r.image8.ConvertToWithParams(&r.imageF, gocv.MatTypeCV32F, scale, 0)
		}
	}

	return p.planarize(dst)
}

// regions returns the letterbox regions for an input size, rebuilding the
// cached Mat headers only when the size changes.
func (p *Preprocessor) regions(inW, inH int) *regions {
	if p.cache != nil && p.cache.srcW == inW && p.cache.srcH == inH {
		return p.cache
	}
	p.cache.close()

	layout := images.ComputeLetterbox(inW, inH, p.cfg.Width, p.cfg.Height)
	p.cache = &regions{
		srcW:   inW,
		srcH:   inH,
		layout: layout,
		image8: p.resized.Region(layout.Image.Image()),
		imageF: p.float.Region(layout.Image.Image()),
	}
	return p.cache
}

// planarize copies the interleaved float scratch image into channel planes,
// plane i taking input channel ChannelMap[i].
func (p *Preprocessor) planarize(dst []float32) error {
	src, err := p.float.DataPtrFloat32()
	if err != nil {
		return errors.Wrap(err, "reading float scratch image")
	}

	c := p.cfg.Channels()
	plane := p.cfg.PlaneSize()
	for i, ch := range p.cfg.ChannelMap {
		out := dst[i*plane : (i+1)*plane]
		for px := range out {
			out[px] = src[px*c+ch]
		}
	}
	return nil
}

// Close releases the scratch images.
func (p *Preprocessor) Close() error {
	p.cache.close()
	p.cache = nil
	p.resized.Close()
	p.float.Close()
	return nil
}
