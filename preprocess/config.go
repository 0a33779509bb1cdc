// Package preprocess turns captured frames into the planar, normalized float
// blob a detection network expects.
package preprocess

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfig is returned by setup when the geometry or channel map is unusable.
	ErrInvalidConfig = errors.New("invalid preprocess config")
	// ErrBatchOverflow is returned when more images are passed than the configured batch.
	ErrBatchOverflow = errors.New("number of images exceeds the configured batch size")
	// ErrChannelMismatch is returned when an image's channel count differs from the configured one.
	ErrChannelMismatch = errors.New("image channels do not match the configured channels")
	// ErrDepth is returned for images that are not 8 bits per channel.
	ErrDepth = errors.New("image is not 8 bits per channel")
	// ErrEmptyImage is returned for images without pixels.
	ErrEmptyImage = errors.New("image is empty")
)

// DefaultChannelMap reorders BGR frames, as delivered by OpenCV, into an RGB blob.
func DefaultChannelMap() []int {
	return []int{2, 1, 0}
}

// Config fixes the geometry of the blob produced by a preprocessor.
type Config struct {
	// Width is the network input width.
	Width int `json:"width" yaml:"width"`
	// Height is the network input height.
	Height int `json:"height" yaml:"height"`
	// Batch is the maximum number of images per run.
	Batch int `json:"batch" yaml:"batch"`
	// ChannelMap selects, for blob plane i, the input channel ChannelMap[i].
	// Its length is the channel count. Defaults to DefaultChannelMap.
	ChannelMap []int `json:"channelMap" yaml:"channelMap"`
}

// Channels returns the number of channels described by the channel map.
func (c Config) Channels() int {
	return len(c.ChannelMap)
}

// PlaneSize returns the number of floats in one channel plane.
func (c Config) PlaneSize() int {
	return c.Width * c.Height
}

// SlotSize returns the number of floats used by one image of the batch.
func (c Config) SlotSize() int {
	return c.PlaneSize() * c.Channels()
}

// BlobSize returns the length of the blob: width*height*channels*batch.
func (c Config) BlobSize() int {
	return c.SlotSize() * c.Batch
}

// withDefaults fills in the channel map when none was given.
func (c Config) withDefaults() Config {
	if len(c.ChannelMap) == 0 {
		c.ChannelMap = DefaultChannelMap()
	} else {
		c.ChannelMap = append([]int(nil), c.ChannelMap...)
	}
	return c
}

// Validate checks the geometry and that the channel map is a permutation of [0, channels).
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the reason, or nil.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Batch <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "batch must be positive, got %d", c.Batch)
	}
	if len(c.ChannelMap) == 0 {
		return errors.Wrap(ErrInvalidConfig, "channel map is empty")
	}

	seen := make([]bool, len(c.ChannelMap))
	for i, ch := range c.ChannelMap {
		if ch < 0 || ch >= len(c.ChannelMap) {
			return errors.Wrapf(ErrInvalidConfig, "channel map[%d] = %d is outside [0, %d)", i, ch, len(c.ChannelMap))
		}
		if seen[ch] {
			return errors.Wrapf(ErrInvalidConfig, "channel %d appears twice in the channel map", ch)
		}
		seen[ch] = true
	}
	return nil
}
