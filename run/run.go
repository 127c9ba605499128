// Package run runs a logging pipeline as a standalone process, fed by lines from stdin
package run

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/config"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/pipeline"
	"github.com/relex/logpipe/util"
)

// Run runs the pipeline until stopped by signals or the end of input
//
// Each input line becomes one record of the given level and layer. Empty lines are skipped.
func Run(configFile string, metricsAddress string, input io.Reader, level base.LogLevel, layer string) {
	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	cfg, err := config.LoadConfigFile(configFile)
	if err != nil {
		logger.Fatalf("error loading config '%s': %s", configFile, err.Error())
	}
	if dump, err := util.MarshalYaml(cfg); err == nil {
		runLogger.Infof("loaded config '%s':\n%s", configFile, dump)
	}
	metricFactory := base.NewMetricFactory(defs.MetricPrefix, nil, nil)
	p, perr := pipeline.New(logger.Root(), *cfg, nil, metricFactory)
	if perr != nil {
		logger.Fatalf("error creating pipeline: %s", perr.Error())
	}

	var msrv *http.Server
	if len(metricsAddress) > 0 {
		msrv = util.LaunchMetricsListener(metricsAddress, metricFactory.Registry())
	}

	p.Start()
	inputEnded := make(chan struct{})
	go func() {
		defer close(inputEnded)
		numRejected := feedLines(p, input, level, layer)
		runLogger.Infof("end of input, rejected=%d", numRejected)
	}()

	// wait for shutdown signal or end of input
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			runLogger.Infof("received %s, shutting down", s)
		case <-inputEnded:
		}
		signal.Stop(sigChan)
	}

	p.Stop()
	stats := p.GetStats()
	runLogger.Infof("processed=%d dropped=%d failed=%d retried=%d", stats.Processed, stats.Dropped, stats.Failed, stats.Retried)

	if msrv != nil {
		if err := msrv.Shutdown(context.Background()); err != nil {
			runLogger.Errorf("error shutting down metrics listener: %v", err)
		}
	}
	runLogger.Info("clean exit")
}

// feedLines logs each non-empty line from input until EOF and returns the numbers of rejected lines
func feedLines(p *pipeline.Pipeline, input io.Reader, level base.LogLevel, layer string) int {
	numRejected := 0
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if err := p.Log(level, layer, line, nil); err != nil {
			numRejected++
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("error reading input: %s", err.Error())
	}
	return numRejected
}
