// Package cmd provides list of commands including self-benchmarks
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "logpipe buffers, batches and writes logs to console and rotating files", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("benchmark <type> ...", "Run benchmark of specified type", &benchCmd, nil)
	config.AddCmdWithArgs("benchmark pipeline ...", "Benchmark pipeline fed by concurrent producers", nil, benchCmd.runBenchmarkPipelineCommand)
	config.AddCmdWithArgs("run ...", "Run pipeline for lines from stdin", &runCmd, runCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	config.Execute()
}
