package format

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/relex/logpipe/base"
	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v4"
)

func makeTestRecord() *base.LogRecord {
	record := &base.LogRecord{
		Timestamp: time.Date(2022, 6, 1, 12, 0, 0, 250000000, time.UTC),
		Level:     base.LevelWarning,
		Layer:     "db",
		Message:   "slow query",
		Source:    base.SourceLocation{File: "query.go", Function: "Run", Line: 42},
		Logger:    "app",
	}
	record.SetExtra("ms", 1500)
	record.SetExtra("db", "main")
	return record
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "WARNING [db] slow query", string(Fallback(makeTestRecord())))
	assert.Equal(t, "LEVEL25 [] x", string(Fallback(&base.LogRecord{Level: 25, Message: "x"})))
}

func TestText(t *testing.T) {
	out, err := Text{}.Format(makeTestRecord())
	assert.Nil(t, err)
	assert.Equal(t, "2022-06-01T12:00:00.250Z WARNING [db] app: slow query (query.go:42 Run) db=main ms=1500", string(out))

	out, err = Text{}.Format(&base.LogRecord{Timestamp: time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC), Level: base.LevelInfo, Layer: "http", Message: "ok"})
	assert.Nil(t, err)
	assert.Equal(t, "2022-06-01T12:00:00.000Z INFO [http] ok", string(out))

	_, err = Text{}.Format(&base.LogRecord{})
	assert.ErrorIs(t, err, base.ErrEmptyMessage)
}

func TestJSON(t *testing.T) {
	out, err := JSON{}.Format(makeTestRecord())
	assert.Nil(t, err)
	decoded := map[string]interface{}{}
	assert.Nil(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "WARNING", decoded["level"])
	assert.EqualValues(t, 30, decoded["levelno"])
	assert.Equal(t, "db", decoded["layer"])
	assert.Equal(t, "slow query", decoded["message"])
	assert.Equal(t, "query.go", decoded["file"])
	assert.EqualValues(t, 42, decoded["line"])
	assert.InDelta(t, 1654084800.25, decoded["time"], 0.001)
	assert.Equal(t, "2022-06-01T12:00:00.250Z", decoded["timestamp"])
	assert.Equal(t, map[string]interface{}{"ms": float64(1500), "db": "main"}, decoded["extra"])
}

func TestMsgpack(t *testing.T) {
	out, err := Msgpack{}.Format(makeTestRecord())
	assert.Nil(t, err)
	var decoded []interface{}
	assert.Nil(t, msgpack.Unmarshal(out, &decoded))
	if assert.Len(t, decoded, 5) {
		assert.True(t, time.Date(2022, 6, 1, 12, 0, 0, 250000000, time.UTC).Equal(decoded[0].(time.Time)))
		assert.EqualValues(t, 30, decoded[1])
		assert.Equal(t, "db", decoded[2])
		assert.Equal(t, "slow query", decoded[3])
		extra := decoded[4].(map[string]interface{})
		assert.EqualValues(t, 1500, extra["ms"])
		assert.Equal(t, "main", extra["db"])
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", NameText, NameJSON, NameMsgpack, NameSimple} {
		f, err := ByName(name)
		assert.Nil(t, err, name)
		assert.NotNil(t, f, name)
	}
	_, err := ByName("xml")
	assert.Error(t, err)

	f, _ := ByName(NameMsgpack)
	assert.True(t, IsBinary(f))
	f, _ = ByName(NameJSON)
	assert.False(t, IsBinary(f))
}
