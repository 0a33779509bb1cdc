package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains ONNX Runtime graph and threading settings.
type OptimizationConfig struct {
	// GraphOptimization is one of disabled, basic, extended or all. Empty means extended.
	GraphOptimization string `json:"graphOptimization" yaml:"graphOptimization"`
	// Parallel runs independent graph nodes concurrently.
	Parallel bool `json:"parallel" yaml:"parallel"`
	// IntraOpNumThreads sets threads for parallelizing ops. Zero lets the runtime decide.
	IntraOpNumThreads int `json:"intraOpNumThreads" yaml:"intraOpNumThreads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. Zero lets the runtime decide.
	InterOpNumThreads int `json:"interOpNumThreads" yaml:"interOpNumThreads"`
}

// DefaultOptimizationConfig returns extended graph optimization with half the CPUs for ops.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		GraphOptimization: "extended",
		IntraOpNumThreads: max(1, runtime.NumCPU()/2),
	}
}

var graphLevels = map[string]ort.GraphOptimizationLevel{
	"":         ort.GraphOptimizationLevelEnableExtended,
	"disabled": ort.GraphOptimizationLevelDisableAll,
	"basic":    ort.GraphOptimizationLevelEnableBasic,
	"extended": ort.GraphOptimizationLevelEnableExtended,
	"all":      ort.GraphOptimizationLevelEnableAll,
}

// Validate checks the optimization level name and thread counts.
func (c OptimizationConfig) Validate() error {
	if _, ok := graphLevels[c.GraphOptimization]; !ok {
		return errors.Errorf("unknown graph optimization level %q", c.GraphOptimization)
	}
	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

func (c OptimizationConfig) apply(options *ort.SessionOptions) error {
	if err := options.SetGraphOptimizationLevel(graphLevels[c.GraphOptimization]); err != nil {
		return errors.Wrap(err, "setting graph optimization level")
	}
	mode := ort.ExecutionModeSequential
	if c.Parallel {
		mode = ort.ExecutionModeParallel
	}
	if err := options.SetExecutionMode(mode); err != nil {
		return errors.Wrap(err, "setting execution mode")
	}
	if err := options.SetIntraOpNumThreads(c.IntraOpNumThreads); err != nil {
		return errors.Wrap(err, "setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(c.InterOpNumThreads); err != nil {
		return errors.Wrap(err, "setting inter-op threads")
	}
	return nil
}
