// Package config - Application configuration for the detection commands.
//
// A config file is YAML. Every field is optional; missing fields keep the
// values of Default, which are the constants of the darknet demo.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/preprocess"
)

// ErrInvalidConfig is returned when a loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Backend names a predictor implementation.
type Backend string

const (
	// BackendDarknet runs .cfg/.weights networks through OpenCV DNN.
	BackendDarknet Backend = "darknet"
	// BackendONNX runs .onnx models through ONNX Runtime.
	BackendONNX Backend = "onnx"
)

// Detection holds the post-processing thresholds.
type Detection struct {
	// Confidence is the strict probability threshold.
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// NMS is the IoU above which a weaker box is suppressed. 0 disables suppression.
	NMS float32 `json:"nms" yaml:"nms"`
	// HierThreshold is forwarded to the decoder.
	HierThreshold float32 `json:"hierThreshold" yaml:"hierThreshold"`
	// NMSMode groups candidates for suppression: class or objectness.
	NMSMode postprocess.NMSMode `json:"nmsMode" yaml:"nmsMode"`
}

// Params converts the thresholds into post-processing parameters.
func (d Detection) Params() postprocess.Params {
	return postprocess.Params{
		Confidence:    d.Confidence,
		NMS:           d.NMS,
		HierThreshold: d.HierThreshold,
		NMSMode:       d.NMSMode,
	}
}

// Preprocess holds the blob layout options.
type Preprocess struct {
	// ChannelMap selects, for blob plane i, the frame channel ChannelMap[i].
	ChannelMap []int `json:"channelMap" yaml:"channelMap"`
}

// Pipeline holds the threaded pipeline options.
type Pipeline struct {
	// Drain emits the last pending result at the end of a file.
	Drain bool `json:"drain" yaml:"drain"`
	// StatsInterval is how often FPS is logged.
	StatsInterval time.Duration `json:"statsInterval" yaml:"statsInterval"`
	// Loop replays image directories forever.
	Loop bool `json:"loop" yaml:"loop"`
	// Profile logs runtime memory and stage timings every ProfileInterval.
	Profile         bool          `json:"profile"         yaml:"profile"`
	ProfileInterval time.Duration `json:"profileInterval" yaml:"profileInterval"`
}

// Darknet selects the OpenCV DNN backend and target by name, as understood
// by gocv.ParseNetBackend and gocv.ParseNetTarget.
type Darknet struct {
	Backend string `json:"backend" yaml:"backend"`
	Target  string `json:"target"  yaml:"target"`
}

// Output controls what happens to annotated frames.
type Output struct {
	// Window shows annotated frames in a window.
	Window bool `json:"window" yaml:"window"`
	// Record writes annotated frames to this video file when set.
	Record string `json:"record" yaml:"record"`
	// Codec is the FourCC of the recording.
	Codec string `json:"codec" yaml:"codec"`
	// FPS of the recording. The source rate is used when zero.
	FPS float64 `json:"fps" yaml:"fps"`
	// Labels keeps only detections of these classes. Empty keeps all.
	Labels []string `json:"labels" yaml:"labels"`
	// MinScore drops detections below this probability.
	MinScore float32 `json:"minScore" yaml:"minScore"`
	// MinArea drops detections with a smaller box area.
	MinArea float32 `json:"minArea" yaml:"minArea"`
}

// Logging configures the logger.
type Logging struct {
	Level       string `json:"level"       yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Config is the complete application configuration.
type Config struct {
	Backend    Backend    `json:"backend"    yaml:"backend"`
	Detection  Detection  `json:"detection"  yaml:"detection"`
	Preprocess Preprocess `json:"preprocess" yaml:"preprocess"`
	Pipeline   Pipeline   `json:"pipeline"   yaml:"pipeline"`
	Darknet    Darknet    `json:"darknet"    yaml:"darknet"`
	Output     Output     `json:"output"     yaml:"output"`
	Logging    Logging    `json:"logging"    yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendDarknet,
		Detection: Detection{
			Confidence:    0.24,
			NMS:           0.4,
			HierThreshold: 0.5,
			NMSMode:       postprocess.NMSPerClass,
		},
		Preprocess: Preprocess{ChannelMap: preprocess.DefaultChannelMap()},
		Pipeline:   Pipeline{StatsInterval: time.Second, ProfileInterval: 5 * time.Second},
		Darknet:    Darknet{Backend: "default", Target: "cpu"},
		Output:     Output{Window: true, Codec: "MJPG"},
		Logging:    Logging{Level: "info"},
	}
}

var (
	netBackends = map[string]bool{"default": true, "halide": true, "openvino": true, "opencv": true, "vulkan": true, "cuda": true}
	netTargets  = map[string]bool{"cpu": true, "fp32": true, "fp16": true, "vpu": true, "vulkan": true, "fpga": true, "cuda": true, "cudafp16": true}
)

// Validate checks value ranges and names.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendDarknet, BackendONNX:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown backend %q", c.Backend)
	}

	d := c.Detection
	if d.Confidence < 0 || d.Confidence > 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence %v outside [0, 1]", d.Confidence)
	}
	if d.NMS < 0 || d.NMS > 1 {
		return errors.Wrapf(ErrInvalidConfig, "nms %v outside [0, 1]", d.NMS)
	}
	switch d.NMSMode {
	case "", postprocess.NMSPerClass, postprocess.NMSObjectness:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown nms mode %q", d.NMSMode)
	}

	probe := preprocess.Config{Width: 1, Height: 1, Batch: 1, ChannelMap: c.Preprocess.ChannelMap}
	if err := probe.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if c.Pipeline.StatsInterval < 0 || c.Pipeline.ProfileInterval < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative interval %s/%s", c.Pipeline.StatsInterval, c.Pipeline.ProfileInterval)
	}
	if !netBackends[c.Darknet.Backend] {
		return errors.Wrapf(ErrInvalidConfig, "unknown dnn backend %q", c.Darknet.Backend)
	}
	if !netTargets[c.Darknet.Target] {
		return errors.Wrapf(ErrInvalidConfig, "unknown dnn target %q", c.Darknet.Target)
	}
	if c.Output.Record != "" && len(c.Output.Codec) != 4 {
		return errors.Wrapf(ErrInvalidConfig, "codec %q is not a fourcc", c.Output.Codec)
	}
	return nil
}

// Load reads a YAML file over Default and validates the result.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: A read or parse error, or ErrInvalidConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
