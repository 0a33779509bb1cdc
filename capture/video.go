package capture

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// maxEmptyReads bounds how many consecutive empty frames a device may deliver.
const maxEmptyReads = 100

// VideoSource reads frames from a camera, a video file or a stream URL.
type VideoSource struct {
	name   string
	device bool
	cap    *gocv.VideoCapture
	index  int
	logger *zap.Logger
}

// OpenVideo opens source. A source that parses as an integer is a camera
// device id; anything else is handed to OpenCV as a file name, URL or
// GStreamer pipeline. An empty source opens camera 0.
//
// Arguments:
//   - source: The device id, file or URL.
//   - logger: The logger, may be nil.
//
// Returns:
//   - *VideoSource: The open source. The caller closes it.
//   - error: ErrCapture when OpenCV cannot open the source.
func OpenVideo(source string, logger *zap.Logger) (*VideoSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if source == "" {
		source = "0"
	}

	var (
		vc     *gocv.VideoCapture
		err    error
		device bool
	)
	if id, convErr := strconv.Atoi(source); convErr == nil {
		device = true
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrCapture, "opening %s: %v", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrCapture, "opening %s", source)
	}

	v := &VideoSource{name: source, device: device, cap: vc, logger: logger}
	logger.Info("video source opened",
		zap.String("source", source),
		zap.Bool("device", device),
		zap.Int("width", v.Width()),
		zap.Int("height", v.Height()),
		zap.Float64("fps", v.FPS()),
	)
	return v, nil
}

// Width returns the frame width reported by the backend.
func (v *VideoSource) Width() int { return int(v.cap.Get(gocv.VideoCaptureFrameWidth)) }

// Height returns the frame height reported by the backend.
func (v *VideoSource) Height() int { return int(v.cap.Get(gocv.VideoCaptureFrameHeight)) }

// FPS returns the frame rate reported by the backend, 0 when unknown.
func (v *VideoSource) FPS() float64 { return v.cap.Get(gocv.VideoCaptureFPS) }

// Read returns the next frame. Files end with io.EOF; a device that stops
// delivering frames fails with ErrCapture.
func (v *VideoSource) Read(ctx context.Context) (Frame, error) {
	mat := gocv.NewMat()
	for empty := 0; ; empty++ {
		if err := ctx.Err(); err != nil {
			mat.Close()
			return Frame{}, err
		}
		if !v.cap.Read(&mat) {
			mat.Close()
			if v.device {
				return Frame{}, errors.Wrapf(ErrCapture, "reading device %s", v.name)
			}
			return Frame{}, io.EOF
		}
		if !mat.Empty() {
			break
		}
		if empty >= maxEmptyReads {
			mat.Close()
			return Frame{}, errors.Wrapf(ErrCapture, "%s delivered %d empty frames", v.name, empty)
		}
	}

	f := Frame{Mat: mat, Index: v.index, Time: time.Now()}
	v.index++
	return f, nil
}

// Close releases the capture.
func (v *VideoSource) Close() error {
	return v.cap.Close()
}
