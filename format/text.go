package format

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/util"
)

// TextTimeLayout is the timestamp layout of Text formatter
const TextTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var textBufferPool = util.NewPool(func() *bytes.Buffer {
	return &bytes.Buffer{}
})

// Text renders records as single lines for humans:
//
//	2022-06-01T12:00:00.000Z WARNING [db] app: slow query (query.go:42 Run) ms=1500
type Text struct {
	Location *time.Location // Timezone of timestamps; UTC if nil
}

// Format implements base.Formatter
func (f Text) Format(record *base.LogRecord) ([]byte, error) {
	if record.Message == "" {
		return nil, base.ErrEmptyMessage
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	buf := textBufferPool.Get()
	defer textBufferPool.Put(buf)
	buf.Reset()

	buf.WriteString(record.Timestamp.In(loc).Format(TextTimeLayout))
	buf.WriteByte(' ')
	buf.WriteString(record.Level.String())
	buf.WriteString(" [")
	buf.WriteString(record.Layer)
	buf.WriteString("] ")
	if record.Logger != "" {
		buf.WriteString(record.Logger)
		buf.WriteString(": ")
	}
	buf.WriteString(record.Message)
	if !record.Source.IsZero() {
		fmt.Fprintf(buf, " (%s:%d %s)", record.Source.File, record.Source.Line, record.Source.Function)
	}
	if len(record.Extra) > 0 {
		keys := make([]string, 0, len(record.Extra))
		for key := range record.Extra {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(buf, " %s=%v", key, record.Extra[key])
		}
	}
	return append([]byte(nil), buf.Bytes()...), nil
}
