package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewLogRecord(t *testing.T) {
	record, err := NewLogRecord(LevelWarning, "db", "slow query")
	require.Nil(t, err)
	assert.False(t, record.Timestamp.IsZero())
	assert.Equal(t, "level=WARNING layer=db len=10", record.String())
	assert.True(t, record.Source.IsZero())
	assert.Equal(t, "", record.Source.String())

	record.Source = SourceLocation{File: "db.go", Function: "query", Line: 42}
	assert.Equal(t, "db.go:42 query", record.Source.String())

	record.SetExtra("rows", 3)
	assert.Equal(t, 3, record.Extra["rows"])

	_, emptyErr := NewLogRecord(LevelInfo, "db", "")
	assert.ErrorIs(t, emptyErr, ErrEmptyMessage)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "CRITICAL", LevelCritical.String())
	assert.Equal(t, "LEVEL25", LogLevel(25).String())

	for name, expected := range map[string]LogLevel{
		"debug":   LevelDebug,
		" Info ":  LevelInfo,
		"WARN":    LevelWarning,
		"warning": LevelWarning,
		"fatal":   LevelCritical,
		"NOTSET":  LevelNotSet,
	} {
		level, err := ParseLogLevel(name)
		assert.Nil(t, err, name)
		assert.Equal(t, expected, level, name)
	}
	_, err := ParseLogLevel("verbose")
	assert.EqualError(t, err, "unknown log level 'verbose'")
}

func TestLogLevelYaml(t *testing.T) {
	var doc struct {
		Level LogLevel `yaml:"level"`
	}
	require.Nil(t, yaml.Unmarshal([]byte("level: error"), &doc))
	assert.Equal(t, LevelError, doc.Level)

	err := yaml.Unmarshal([]byte("level: loud"), &doc)
	assert.ErrorContains(t, err, "yaml line 1:")
	assert.ErrorContains(t, err, "unknown log level 'loud'")
	assert.ErrorContains(t, yaml.Unmarshal([]byte("level: [info]"), &doc), "log level must be a name")

	doc.Level = LevelWarning
	out, merr := yaml.Marshal(doc)
	require.Nil(t, merr)
	assert.Equal(t, "level: WARNING\n", string(out))
}
