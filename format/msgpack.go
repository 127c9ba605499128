package format

import (
	"bytes"

	"github.com/relex/logpipe/base"
	"github.com/vmihailenco/msgpack/v4"
)

// Msgpack renders records as msgpack arrays of [time, level, layer, message, extra], for compact binary logs
//
// The output has no delimiters; each record is one self-delimited msgpack value.
type Msgpack struct{}

// Format implements base.Formatter
func (Msgpack) Format(record *base.LogRecord) ([]byte, error) {
	if record.Message == "" {
		return nil, base.ErrEmptyMessage
	}
	buf := &bytes.Buffer{}
	encoder := msgpack.NewEncoder(buf)
	if err := encoder.EncodeArrayLen(5); err != nil {
		return nil, err
	}
	if err := encoder.EncodeTime(record.Timestamp); err != nil {
		return nil, err
	}
	if err := encoder.EncodeInt(int64(record.Level)); err != nil {
		return nil, err
	}
	if err := encoder.EncodeString(record.Layer); err != nil {
		return nil, err
	}
	if err := encoder.EncodeString(record.Message); err != nil {
		return nil, err
	}
	if err := encoder.Encode(record.Extra); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
