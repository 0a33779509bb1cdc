package providers

import (
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. Zero leaves the runtime default.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena, kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// Capture the model in a CUDA graph after the first run.
	EnableCudaGraph bool `json:"enableCudaGraph" yaml:"enableCudaGraph"`
	// Allow TF32 math on Ampere and newer.
	UseTF32 bool `json:"useTF32" yaml:"useTF32"`
	// Prefer NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC" yaml:"preferNHWC"`
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Map returns the options as ONNX Runtime provider keys. Unset options are omitted.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": flag(o.DoCopyInDefaultStream),
		"enable_cuda_graph":         flag(o.EnableCudaGraph),
		"use_tf32":                  flag(o.UseTF32),
		"prefer_nhwc":               flag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		m["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return m
}

func (o CUDAOptions) apply(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cuda.Destroy()

	if err := cuda.Update(o.Map()); err != nil {
		return err
	}
	return options.AppendExecutionProviderCUDA(cuda)
}
