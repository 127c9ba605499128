package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relex/logpipe/defs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	defs.EnableTestMode()
}

func TestRunBenchmarkPipeline(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	require.Nil(t, os.WriteFile(configPath, []byte(`
queue: {maxSize: 100000, batchSize: 500}
sinks: [{name: console, type: console}]
`), 0644))
	outputPath := filepath.Join(dir, "out.log")

	result := RunBenchmarkPipeline(configPath, outputPath, 4, 1000)
	assert.Equal(t, 4000, result.NumLogs)
	assert.EqualValues(t, 4000, result.Queue.Processed)
	assert.EqualValues(t, 0, result.Queue.Dropped)
	require.Len(t, result.Pools, 1)
	assert.EqualValues(t, 4000, result.Pools[0].TotalRequests)

	content, err := os.ReadFile(outputPath)
	require.Nil(t, err)
	assert.Equal(t, 4000, strings.Count(string(content), "\n"))
}

func TestRunBenchmarkPipelineNullOutput(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")
	require.Nil(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
name: %s
sinks: [{name: console, type: console}]
`, "nulltest")), 0644))

	result := RunBenchmarkPipeline(configPath, "null", 2, 100)
	assert.EqualValues(t, 200, result.Queue.Processed)
	assert.Equal(t, "nulltest", result.Pools[0].Name)
}
