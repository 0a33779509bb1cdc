package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/capture"
	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/preprocess"
)

// ErrEmptyCorpus is returned when a scenario runs without images.
var ErrEmptyCorpus = errors.New("no benchmark images")

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	// Predictor is a set up predictor.
	Predictor inference.Predictor
	// Layout overrides the predictor's own layout.
	Layout *postprocess.Layout
	// Labels enable the label range check, like in detection.
	Labels []string
	// ChannelMap of the image preprocessor, DefaultChannelMap when empty.
	ChannelMap []int
	// OutputDir receives the result files.
	OutputDir string
	// Clock times the stages, the wall clock when nil.
	Clock clock.Clock
	// Logger reports scenario results.
	Logger *zap.Logger
}

// Suite manages and executes benchmark scenarios
type Suite struct {
	predictor inference.Predictor
	layout    postprocess.Layout
	labels    []string
	pre       *preprocess.ImagePreprocessor
	outputDir string
	clock     clock.Clock
	logger    *zap.Logger

	mu        sync.RWMutex
	scenarios []Scenario
	corpus    []image.Image
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: inference.ErrNotSetup, postprocess.ErrInvalidLayout or a preprocess config error.
func NewSuite(args NewSuiteArgs) (*Suite, error) {
	p := args.Predictor
	if p == nil || p.Width() == 0 {
		return nil, errors.Wrap(inference.ErrNotSetup, "benchmark predictor")
	}

	var layout postprocess.Layout
	switch lp, ok := p.(inference.LayoutProvider); {
	case args.Layout != nil:
		layout = *args.Layout
	case ok:
		layout = lp.Layout()
	default:
		return nil, errors.Wrap(postprocess.ErrInvalidLayout, "predictor has no layout")
	}
	if layout.NetWidth == 0 {
		layout.NetWidth, layout.NetHeight = p.Width(), p.Height()
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	pre, err := preprocess.NewImagePreprocessor(preprocess.Config{
		Width:      p.Width(),
		Height:     p.Height(),
		Batch:      p.Batch(),
		ChannelMap: args.ChannelMap,
	})
	if err != nil {
		return nil, err
	}

	if args.Clock == nil {
		args.Clock = clock.New()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}
	return &Suite{
		predictor: p,
		layout:    layout,
		labels:    args.Labels,
		pre:       pre,
		outputDir: args.OutputDir,
		clock:     args.Clock,
		logger:    args.Logger,
	}, nil
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// SetCorpus replaces the benchmark images.
func (bs *Suite) SetCorpus(imgs []image.Image) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.corpus = imgs
}

// LoadCorpus decodes every image of dir, in frame order.
func (bs *Suite) LoadCorpus(dir string) error {
	files, err := capture.ListImageFiles(dir)
	if err != nil {
		return err
	}
	imgs := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := capture.LoadImage(f.Path)
		if err != nil {
			bs.logger.Warn("skipping image", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		imgs = append(imgs, img)
	}
	if len(imgs) == 0 {
		return errors.Wrapf(ErrEmptyCorpus, "in %s", dir)
	}
	bs.SetCorpus(imgs)
	return nil
}

// stageTimes holds the durations of one image.
type stageTimes struct {
	preprocess, inference, postprocess time.Duration
}

func (s stageTimes) total() time.Duration { return s.preprocess + s.inference + s.postprocess }

// processImage runs one image through the three stages.
func (bs *Suite) processImage(img image.Image, params postprocess.Params) (int, stageTimes, error) {
	var st stageTimes

	start := bs.clock.Now()
	blob, err := bs.pre.Run(img)
	if err != nil {
		return 0, st, errors.Wrap(err, "preprocess")
	}
	preDone := bs.clock.Now()
	st.preprocess = preDone.Sub(start)

	if err := bs.predictor.Predict(blob); err != nil {
		return 0, st, errors.Wrap(err, "predict")
	}
	inferDone := bs.clock.Now()
	st.inference = inferDone.Sub(preDone)

	b := img.Bounds()
	params.OutputWidth, params.OutputHeight = b.Dx(), b.Dy()
	dets, err := postprocess.Detect(bs.predictor.Output(), bs.layout, params, bs.labels)
	if err != nil {
		return 0, st, errors.Wrap(err, "postprocess")
	}
	st.postprocess = bs.clock.Since(inferDone)
	return len(dets), st, nil
}

// RunScenario executes a single benchmark scenario
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	bs.mu.RLock()
	corpus := bs.corpus
	bs.mu.RUnlock()
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, _, err := bs.processImage(corpus[i%len(corpus)], scenario.Params); err != nil {
			return nil, errors.Wrapf(err, "warmup %d", i)
		}
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	metrics := &PerformanceMetrics{Scenario: scenario, Timestamp: bs.clock.Now(), NumCPU: runtime.NumCPU()}
	latencies := make([]time.Duration, 0, scenario.Iterations)
	failures := 0

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, st, err := bs.processImage(corpus[i%len(corpus)], scenario.Params)
		if err != nil {
			failures++
			bs.logger.Debug("iteration failed", zap.Int("iteration", i), zap.Error(err))
			continue
		}
		metrics.DetectionCount += n
		metrics.PreprocessDuration += st.preprocess
		metrics.InferenceDuration += st.inference
		metrics.PostProcessDuration += st.postprocess
		latencies = append(latencies, st.total())
	}

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.TotalDuration = metrics.PreprocessDuration + metrics.InferenceDuration + metrics.PostProcessDuration
	if metrics.TotalDuration > 0 {
		metrics.FramesPerSecond = float64(len(latencies)) / metrics.TotalDuration.Seconds()
	}
	metrics.Latency = summarize(latencies)
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios and saves the
// results when an output directory is set. A failing scenario is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := append([]Scenario(nil), bs.scenarios...)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bs.logger.Error("scenario failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("scenario completed",
			zap.String("scenario", scenario.Name),
			zap.Float64("fps", metrics.FramesPerSecond),
			zap.Duration("p95", metrics.Latency.P95),
			zap.Float64("errorRate", metrics.ErrorRate),
		)
	}

	if bs.outputDir == "" {
		return nil
	}
	return bs.SaveResults()
}

// SaveResults writes the results as JSON and a CSV summary into the output directory.
func (bs *Suite) SaveResults() error {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	timestamp := bs.clock.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return errors.Wrap(err, "writing results")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return errors.Wrap(err, "writing summary")
	}

	bs.logger.Info("results saved", zap.String("results", resultsFile), zap.String("summary", summaryFile))
	return nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"scenario", "iterations", "fps", "p50_ms", "p95_ms", "p99_ms", "inference_ms", "detections", "error_rate"}); err != nil {
		return err
	}
	ms := func(d time.Duration) string { return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64) }
	for _, r := range results {
		var perImage time.Duration
		if r.Scenario.Iterations > 0 {
			perImage = r.InferenceDuration / time.Duration(r.Scenario.Iterations)
		}
		if err := w.Write([]string{
			r.Scenario.Name,
			strconv.Itoa(r.Scenario.Iterations),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			ms(r.Latency.P50),
			ms(r.Latency.P95),
			ms(r.Latency.P99),
			ms(perImage),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}
