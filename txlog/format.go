package txlog

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Injected field names on outgoing events.
const (
	FieldTraceID  = "trace_id"
	FieldDataType = "data_type"
)

// Event is a formatted Record ready for publishing. Encoding happens once,
// at publish time, so serialization failures are attributable per event.
type Event struct {
	Record Record
}

// Encode renders the event as JSON bytes.
func (e Event) Encode() ([]byte, error) {
	return e.Record.MarshalJSON()
}

// TraceID returns the injected trace identifier, empty when tracing is disabled.
func (e Event) TraceID() string {
	v, ok := e.Record.Get(FieldTraceID)
	if !ok {
		return ""
	}
	return v.Text()
}

// Formatter maps source records into wire events. It injects a fresh trace_id
// per event (unless disabled) and the configured data_type tag, and normalizes
// temporal fields to TimeLayout text. Source fields pass through otherwise.
type Formatter struct {
	AddTraceID bool
	DataType   string
}

// Format converts one source record into a wire event. It is total over
// well-formed records: missing optional fields are fine, and a source column
// colliding with an injected field name is overwritten rather than duplicated.
func (f Formatter) Format(rec Record) (Event, error) {
	out := make(Record, 0, len(rec)+2)
	if f.AddTraceID {
		out = append(out, Field{Name: FieldTraceID, Value: String(uuid.NewString())})
	}
	out = append(out, Field{Name: FieldDataType, Value: String(f.DataType)})

	for _, fld := range rec {
		v := fld.Value
		if v.Kind() == KindFloat && (math.IsNaN(v.flt) || math.IsInf(v.flt, 0)) {
			return Event{}, fmt.Errorf("field %q: non-finite number", fld.Name)
		}
		if t, ok := v.Time(); ok {
			v = String(t.Format(TimeLayout))
		}
		out = out.Set(fld.Name, v)
	}

	return Event{Record: out}, nil
}
