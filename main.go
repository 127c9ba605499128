package main

import (
	"runtime"

	"github.com/relex/gotils/logger"
	"github.com/relex/logpipe/cmd"
)

var version string

func main() {
	logger.Infof("version: %s", version)
	logger.Infof("GOMAXPROCS: %d", runtime.GOMAXPROCS(0))

	cmd.Execute()
}
