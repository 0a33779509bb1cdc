package providers

import (
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags, as defined by coreml_provider_factory.h.
const (
	coreMLUseCPUOnly       uint32 = 0x001
	coreMLEnableOnSubgraph uint32 = 0x002
	coreMLOnlyANE          uint32 = 0x004
	coreMLOnlyStaticShapes uint32 = 0x008
	coreMLCreateMLProgram  uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	UseCPUOnly bool `json:"useCPUOnly" yaml:"useCPUOnly"`
	// Run on subgraphs in the body of control flow operators.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
	// Only use devices with an Apple Neural Engine.
	OnlyANE bool `json:"onlyANE" yaml:"onlyANE"`
	// Only take nodes with static input shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Create an MLProgram instead of a NeuralNetwork model. Requires Core ML 5 or later.
	MLProgram bool `json:"mlProgram" yaml:"mlProgram"`
}

// Flags returns the CoreML provider flag word.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.UseCPUOnly {
		flags |= coreMLUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLEnableOnSubgraph
	}
	if o.OnlyANE {
		flags |= coreMLOnlyANE
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLOnlyStaticShapes
	}
	if o.MLProgram {
		flags |= coreMLCreateMLProgram
	}
	return flags
}

func (o CoreMLOptions) apply(options *ort.SessionOptions) error {
	return options.AppendExecutionProviderCoreML(o.Flags())
}
