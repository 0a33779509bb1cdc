package capture

import (
	"context"
	"image"
	_ "image/jpeg" // Register decoders for LoadImage.
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gocv.io/x/gocv"
)

// ErrUnsupportedImage is returned for files with an unknown image extension.
var ErrUnsupportedImage = errors.New("unsupported image format")

// opencvFormats are decoded by OpenCV; the rest go through image.Decode.
var opencvFormats = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

var goFormats = map[string]bool{".tif": true, ".tiff": true, ".webp": true}

// IsImage reports whether path has an extension the directory source reads.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return opencvFormats[ext] || goFormats[ext]
}

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the name, or the position in name order.
	Frame int
}

var frameNumber = regexp.MustCompile(`(\d+)$`)

// ListImageFiles lists the image files of dir in frame order. Files named
// like "frame-12.jpg" sort by their number; the rest follow in name order.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The image files.
// - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	type entry struct {
		ImageFile
		numbered bool
	}
	var files []entry
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		f := entry{ImageFile: ImageFile{Path: filepath.Join(dir, e.Name())}}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if m := frameNumber.FindStringSubmatch(stem); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				f.Frame, f.numbered = n, true
			}
		}
		files = append(files, f)
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.numbered != b.numbered {
			return a.numbered
		}
		if a.numbered && a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	out := make([]ImageFile, len(files))
	for i, f := range files {
		out[i] = f.ImageFile
		if !f.numbered {
			out[i].Frame = i
		}
	}
	return out, nil
}

// DirectorySource replays a directory of still images as a video.
type DirectorySource struct {
	files []ImageFile
	next  int
	loop  bool
}

// OpenDirectory lists dir. With loop set the images repeat forever.
func OpenDirectory(dir string, loop bool) (*DirectorySource, error) {
	files, err := ListImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrCapture, "no images in %s", dir)
	}
	return &DirectorySource{files: files, loop: loop}, nil
}

// Len returns the number of images.
func (d *DirectorySource) Len() int { return len(d.files) }

// Read decodes the next image. It returns io.EOF after the last one unless looping.
func (d *DirectorySource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.next >= len(d.files) {
		if !d.loop {
			return Frame{}, io.EOF
		}
		d.next = 0
	}
	f := d.files[d.next]
	mat, err := ReadMat(f.Path)
	if err != nil {
		return Frame{}, err
	}
	d.next++
	return Frame{Mat: mat, Index: f.Frame, Time: time.Now()}, nil
}

// ReadMat decodes an image file into a BGR Mat.
func ReadMat(path string) (gocv.Mat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case opencvFormats[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return gocv.Mat{}, errors.Wrapf(err, "reading %s", path)
		}
		mat, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil {
			return gocv.Mat{}, errors.Wrapf(err, "decoding %s", path)
		}
		if mat.Empty() {
			mat.Close()
			return gocv.Mat{}, errors.Wrapf(ErrUnsupportedImage, "decoding %s", path)
		}
		return mat, nil
	case goFormats[ext]:
		img, err := LoadImage(path)
		if err != nil {
			return gocv.Mat{}, err
		}
		mat, err := gocv.ImageToMatRGB(img)
		if err != nil {
			return gocv.Mat{}, errors.Wrapf(err, "converting %s", path)
		}
		return mat, nil
	}
	return gocv.Mat{}, errors.Wrapf(ErrUnsupportedImage, "%s", path)
}

// LoadImage decodes an image file with the Go decoders: JPEG, PNG, BMP, TIFF and WebP.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedImage, "decoding %s: %v", path, err)
	}
	return img, nil
}
