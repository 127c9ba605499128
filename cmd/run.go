package cmd

import (
	"os"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/defs"
	"github.com/relex/logpipe/run"
)

type runCommandState struct {
	Config      string `help:"Configuration file path"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information, empty to disable"`
	Level       string `help:"Level of records made from input lines"`
	Layer       string `help:"Layer of records made from input lines"`
	TestMode    bool   `help:"Use test mode config: fast retry and short timeout"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	MetricsAddr: ":9335",
	Level:       "info",
	Layer:       "stdin",
	TestMode:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}
	level, err := base.ParseLogLevel(cmd.Level)
	if err != nil {
		logger.Fatal(err)
	}
	run.Run(cmd.Config, cmd.MetricsAddr, os.Stdin, level, cmd.Layer)
}
