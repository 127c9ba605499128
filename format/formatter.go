package format

import (
	"fmt"

	"github.com/relex/logpipe/base"
)

// Names of formatters in configuration
const (
	NameText    = "text"
	NameJSON    = "json"
	NameMsgpack = "msgpack"
	NameSimple  = "simple"
)

// ByName returns the formatter of given name
func ByName(name string) (base.Formatter, error) {
	switch name {
	case NameText, "":
		return Text{}, nil
	case NameJSON:
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	case NameSimple:
		return FallbackFormatter, nil
	default:
		return nil, fmt.Errorf("unknown format '%s'", name)
	}
}

// IsBinary returns true if the formatter output shouldn't be separated by newlines
func IsBinary(formatter base.Formatter) bool {
	_, ok := formatter.(Msgpack)
	return ok
}
