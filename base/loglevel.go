package base

import (
	"fmt"
	"strings"

	"github.com/relex/logpipe/util"
	"gopkg.in/yaml.v3"
)

// LogLevel is the numeric severity of a record
type LogLevel int

// Known levels. Custom levels in between are allowed and named by number.
const (
	LevelNotSet   LogLevel = 0
	LevelDebug    LogLevel = 10
	LevelInfo     LogLevel = 20
	LevelWarning  LogLevel = 30
	LevelError    LogLevel = 40
	LevelCritical LogLevel = 50
)

var levelNames = map[LogLevel]string{
	LevelNotSet:   "NOTSET",
	LevelDebug:    "DEBUG",
	LevelInfo:     "INFO",
	LevelWarning:  "WARNING",
	LevelError:    "ERROR",
	LevelCritical: "CRITICAL",
}

func (level LogLevel) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL%d", int(level))
}

// ParseLogLevel parses a level name case-insensitively, also accepting "WARN" and "FATAL"
func ParseLogLevel(name string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch upper {
	case "WARN":
		return LevelWarning, nil
	case "FATAL":
		return LevelCritical, nil
	}
	for level, levelName := range levelNames {
		if levelName == upper {
			return level, nil
		}
	}
	return LevelNotSet, fmt.Errorf("unknown log level '%s'", name)
}

// MarshalYAML exports the level by name
func (level LogLevel) MarshalYAML() (interface{}, error) {
	return level.String(), nil
}

// UnmarshalYAML parses level names in configuration
func (level *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return util.NewYamlError(value, "log level must be a name")
	}
	parsed, err := ParseLogLevel(value.Value)
	if err != nil {
		return util.NewYamlError(value, err.Error())
	}
	*level = parsed
	return nil
}
