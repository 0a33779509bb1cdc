package benchmark

import (
	"github.com/nvr-ai/go-darknet/postprocess"
)

// Scenario defines a specific test configuration
type Scenario struct {
	Name       string             `json:"name"        yaml:"name"`
	Iterations int                `json:"iterations"  yaml:"iterations"`
	WarmupRuns int                `json:"warmup_runs" yaml:"warmupRuns"`
	Params     postprocess.Params `json:"params"      yaml:"params"`
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder with 100 iterations,
// 10 warmup runs and the darknet demo thresholds.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Iterations: 100,
			WarmupRuns: 10,
			Params: postprocess.Params{
				Confidence:    0.24,
				NMS:           0.4,
				HierThreshold: 0.5,
			},
		},
	}
}

// WithIterations sets the number of measured iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithParams sets the post-processing thresholds
func (sb *ScenarioBuilder) WithParams(params postprocess.Params) *ScenarioBuilder {
	sb.scenario.Params = params
	return sb
}

// Build returns the configured scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}
