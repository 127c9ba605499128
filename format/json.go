package format

import (
	"github.com/goccy/go-json"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/util"
)

type jsonRecord struct {
	Time      float64                `json:"time"`
	Level     string                 `json:"level"`
	LevelNo   int                    `json:"levelno"`
	Layer     string                 `json:"layer"`
	Logger    string                 `json:"logger,omitempty"`
	Message   string                 `json:"message"`
	File      string                 `json:"file,omitempty"`
	Function  string                 `json:"function,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// JSON renders records as one JSON object per line, with Unix time in float seconds
type JSON struct{}

// Format implements base.Formatter
func (JSON) Format(record *base.LogRecord) ([]byte, error) {
	if record.Message == "" {
		return nil, base.ErrEmptyMessage
	}
	return json.Marshal(&jsonRecord{
		Time:      util.TimeToUnixFloat(record.Timestamp),
		Level:     record.Level.String(),
		LevelNo:   int(record.Level),
		Layer:     record.Layer,
		Logger:    record.Logger,
		Message:   record.Message,
		File:      record.Source.File,
		Function:  record.Source.Function,
		Line:      record.Source.Line,
		Extra:     record.Extra,
		Timestamp: record.Timestamp.UTC().Format(TextTimeLayout),
	})
}
