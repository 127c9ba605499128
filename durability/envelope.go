package durability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/relex/logpipe/base"
	"github.com/relex/logpipe/util"
)

const (
	envelopeSuffix        = ".json"
	corruptSuffix         = ".corrupt"
	envelopeIDLength      = 8
	envelopeQueueHashSize = 8
)

// Envelope is the unit of backup storage: one record or one raw payload of a queue
type Envelope struct {
	Queue     string          `json:"queue"`
	CreatedAt time.Time       `json:"created_at"`
	Record    *RecordEnvelope `json:"record,omitempty"`
	Payload   string          `json:"payload,omitempty"`
}

// RecordEnvelope is the serialized form of base.LogRecord
type RecordEnvelope struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     int                    `json:"level"`
	LevelName string                 `json:"level_name"`
	Layer     string                 `json:"layer"`
	Message   string                 `json:"message"`
	File      string                 `json:"file,omitempty"`
	Function  string                 `json:"function,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Logger    string                 `json:"logger,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

func newRecordEnvelope(record *base.LogRecord) *RecordEnvelope {
	env := &RecordEnvelope{
		Timestamp: record.Timestamp,
		Level:     int(record.Level),
		LevelName: record.Level.String(),
		Layer:     record.Layer,
		Message:   record.Message,
		File:      record.Source.File,
		Function:  record.Source.Function,
		Line:      record.Source.Line,
		Logger:    record.Logger,
	}
	if len(record.Extra) > 0 {
		env.Extra = make(map[string]interface{}, len(record.Extra))
		for k, v := range record.Extra {
			env.Extra[k] = v
		}
	}
	return env
}

// ToRecord creates a new log record from the envelope
func (env *RecordEnvelope) ToRecord() (*base.LogRecord, error) {
	record := &base.LogRecord{
		Timestamp: env.Timestamp,
		Level:     base.LogLevel(env.Level),
		Layer:     env.Layer,
		Message:   env.Message,
		Source: base.SourceLocation{
			File:     env.File,
			Function: env.Function,
			Line:     env.Line,
		},
		Logger: env.Logger,
	}
	if len(env.Extra) > 0 {
		record.Extra = env.Extra
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// ToRecord converts the envelope to a log record, either from the stored record or from the payload as message
func (env *Envelope) ToRecord() (*base.LogRecord, error) {
	if env.Record != nil {
		return env.Record.ToRecord()
	}
	record := &base.LogRecord{
		Timestamp: env.CreatedAt,
		Level:     base.LevelInfo,
		Message:   env.Payload,
		Logger:    env.Queue,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

func encodeEnvelope(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	if env.Record == nil && env.Payload == "" {
		return nil, fmt.Errorf("envelope contains neither record nor payload")
	}
	return env, nil
}

// envelopeQueuePart converts a queue name to the file-safe part of envelope names
//
// Names changed by sanitization get a hash suffix so that different queues never share files
func envelopeQueuePart(queue string) string {
	part := sanitizeFileName(queue)
	if part != queue {
		hash := util.MD5ToHexdigest(queue)
		part = part + "." + hash[len(hash)-envelopeQueueHashSize:]
	}
	return part
}

// makeEnvelopeName creates a file name as "{queue}_{unixnano}_{id}.json"
func makeEnvelopeName(queue string, unixNano int64) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:envelopeIDLength]
	return fmt.Sprintf("%s_%020d_%s%s", envelopeQueuePart(queue), unixNano, id, envelopeSuffix)
}

// parseEnvelopeName splits an envelope file name into queue part and creation timestamp
func parseEnvelopeName(name string) (string, int64, bool) {
	if !strings.HasSuffix(name, envelopeSuffix) || strings.HasPrefix(name, ".") {
		return "", 0, false
	}
	stem := strings.TrimSuffix(name, envelopeSuffix)
	idPos := strings.LastIndexByte(stem, '_')
	if idPos <= 0 || len(stem)-idPos-1 != envelopeIDLength {
		return "", 0, false
	}
	tsPos := strings.LastIndexByte(stem[:idPos], '_')
	if tsPos <= 0 {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(stem[tsPos+1:idPos], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return stem[:tsPos], ts, true
}

func sanitizeFileName(name string) string {
	if name == "" {
		return "_"
	}
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case 0, '/', '\\':
			c = '_'
		}
		result[i] = c
	}
	return string(result)
}
