// Package test provides self-benchmarks of the pipeline
package test

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/config"
	"github.com/relex/logpipe/pipeline"
)

type benchmarkMetric struct {
	fmt string
	val float64
}

// BenchmarkResult is the summary of one benchmark run
type BenchmarkResult struct {
	NumLogs int
	Queue   base.QueueStats
	Pools   []base.PoolStats
	Cost    CostReport
}

// RunBenchmarkPipeline benchmarks a pipeline fed by concurrent producers
//
// The output path overrides configured sinks: "" keeps them, "null" discards all output, anything else is the path of
// a plain file sink.
func RunBenchmarkPipeline(configFile string, outputPath string, producers int, repeat int) BenchmarkResult {
	cfg, err := config.LoadConfigFile(configFile)
	if err != nil {
		logger.Fatalf("error loading config '%s': %s", configFile, err.Error())
	}
	overrideOutput(cfg, outputPath)

	mfactory := base.NewMetricFactory("benchpipeline_", nil, nil)
	result := runPipeline(*cfg, mfactory, producers, repeat)
	reportBenchmarkResult("BenchmarkPipeline", result)
	dump, _ := mfactory.DumpMetrics(false)
	logger.Info(dump)
	return result
}

func overrideOutput(cfg *config.PipelineConfig, outputPath string) {
	switch outputPath {
	case "":
		return
	case "null":
		outputPath = os.DevNull
	}
	cfg.Sinks = []config.SinkConfig{{
		Name:   "benchmark",
		Type:   config.SinkTypeFile,
		Path:   outputPath,
		Format: "text",
	}}
}

func runPipeline(cfg config.PipelineConfig, mfactory *base.MetricFactory, producers int, repeat int) BenchmarkResult {
	p, err := pipeline.New(logger.WithField("benchmark", cfg.Name), cfg, nil, mfactory)
	if err != nil {
		logger.Fatalf("error creating pipeline: %s", err.Error())
	}
	messages := make([]string, 100)
	for i := range messages {
		messages[i] = "benchmark message #" + strconv.Itoa(i) + " with some padding to look like real logs"
	}

	costTracker := StartCostTracking()
	p.Start()
	wg := &sync.WaitGroup{}
	for n := 0; n < producers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				_ = p.Log(base.LevelInfo, "bench", messages[i%len(messages)], nil)
			}
		}()
	}
	wg.Wait()
	pools := p.GetAllPoolStats()
	p.Stop()

	return BenchmarkResult{
		NumLogs: producers * repeat,
		Queue:   p.GetStats(),
		Pools:   pools,
		Cost:    costTracker.Report(),
	}
}

func reportBenchmarkResult(title string, result BenchmarkResult) {
	report := result.Cost
	metrics := []benchmarkMetric{
		{fmt: "%.0f log/sec", val: float64(result.NumLogs) / report.RealTime.Seconds()},
		{fmt: "%0.2f alloc/log", val: float64(report.NumHeapAllocs) / float64(result.NumLogs)},
		{fmt: "%0.2f%% user", val: 100.0 * report.UserTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% sys", val: 100.0 * report.SystemTime.Seconds() / report.RealTime.Seconds()},
		{fmt: "%0.2f%% gc", val: 100.0 * report.GCCPUFraction},
		{fmt: "%.02f sec", val: report.RealTime.Seconds()},
		{fmt: "%.0f processed", val: float64(result.Queue.Processed)},
		{fmt: "%.0f dropped", val: float64(result.Queue.Dropped)},
		{fmt: "%.0f batches", val: float64(result.Queue.BatchCount)},
	}
	for _, ps := range result.Pools {
		metrics = append(metrics, benchmarkMetric{fmt: ps.Name + " %0.2f hit rate", val: ps.HitRate})
	}
	accounted := result.Queue.Processed + result.Queue.Dropped + result.Queue.Failed
	if int(accounted) != result.NumLogs {
		logger.Warnf("numbers of processed and dropped records don't match: %d, should be %d unless backed up", accounted, result.NumLogs)
	}
	printBenchmarkMetrics(title, metrics)
}

func printBenchmarkMetrics(title string, metrics []benchmarkMetric) {
	sb := make([]byte, 0, 200)
	sb = append(sb, fmt.Sprintf("%s:", title)...)
	for _, m := range metrics {
		sb = append(sb, fmt.Sprintf("\t"+m.fmt, m.val)...)
	}
	fmt.Println(string(sb))
}
