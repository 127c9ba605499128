package cmd

import (
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/test"
)

type benchmarkCommandState struct {
	Output    string `help:"Output file path:\n'': (empty) write to sinks as configured\n'null': abandon all output\nplain text file, e.g. /tmp/all-logs.log"`
	Producers int    `help:"Numbers of concurrent producers"`
	Repeat    int    `help:"Numbers of records from each producer"`
	Config    string `help:"Configuration file path"`
}

var benchCmd = benchmarkCommandState{
	Output:    "null",
	Producers: 4,
	Repeat:    100000,
	Config:    "testdata/config_sample.yml",
}

func (cmd *benchmarkCommandState) runBenchmarkPipelineCommand(_ []string) {
	defs.EnableTestMode()
	test.RunBenchmarkPipeline(cmd.Config, cmd.Output, cmd.Producers, cmd.Repeat)
}
