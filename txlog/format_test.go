package txlog

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	return Record{
		{Name: "ID", Value: Int(101)},
		{Name: "CASE_ID", Value: String("C-2201")},
		{Name: "EVENT_TYPE", Value: String("CASE_UPDATE")},
		{Name: "EVENT_DATA", Value: String(`{"field":"status"}`)},
		{Name: "CREATED_AT", Value: Time(time.Date(2025, 2, 3, 10, 30, 0, 0, time.UTC))},
	}
}

func TestFormat_InjectsTraceAndType(t *testing.T) {
	f := Formatter{AddTraceID: true, DataType: "TXLOG"}

	ev, err := f.Format(testRecord())
	require.NoError(t, err)

	// Injected fields come first, source fields follow in fetch order
	assert.Equal(t, FieldTraceID, ev.Record[0].Name)
	assert.Equal(t, FieldDataType, ev.Record[1].Name)
	assert.Equal(t, "ID", ev.Record[2].Name)

	dt, ok := ev.Record.Get(FieldDataType)
	require.True(t, ok)
	assert.Equal(t, "TXLOG", dt.Text())

	// trace_id is a well-formed UUID
	_, err = uuid.Parse(ev.TraceID())
	assert.NoError(t, err)
}

func TestFormat_FreshTracePerEvent(t *testing.T) {
	f := Formatter{AddTraceID: true, DataType: "TXLOG"}

	a, err := f.Format(testRecord())
	require.NoError(t, err)
	b, err := f.Format(testRecord())
	require.NoError(t, err)

	assert.NotEqual(t, a.TraceID(), b.TraceID())
}

func TestFormat_DeterministicWithoutTrace(t *testing.T) {
	f := Formatter{AddTraceID: false, DataType: "TXLOG"}

	a, err := f.Format(testRecord())
	require.NoError(t, err)
	b, err := f.Format(testRecord())
	require.NoError(t, err)

	aj, err := a.Encode()
	require.NoError(t, err)
	bj, err := b.Encode()
	require.NoError(t, err)
	assert.Equal(t, aj, bj)
	assert.Empty(t, a.TraceID())
}

func TestFormat_TraceOnlyDifference(t *testing.T) {
	f := Formatter{AddTraceID: true, DataType: "TXLOG"}

	a, err := f.Format(testRecord())
	require.NoError(t, err)
	b, err := f.Format(testRecord())
	require.NoError(t, err)

	// Strip the trace field; everything else is byte-identical
	aj, err := Event{Record: a.Record[1:]}.Encode()
	require.NoError(t, err)
	bj, err := Event{Record: b.Record[1:]}.Encode()
	require.NoError(t, err)
	assert.Equal(t, aj, bj)
}

func TestFormat_NormalizesTimes(t *testing.T) {
	f := Formatter{DataType: "TXLOG"}

	ev, err := f.Format(testRecord())
	require.NoError(t, err)

	v, ok := ev.Record.Get("CREATED_AT")
	require.True(t, ok)
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, "2025-02-03T10:30:00", v.Text())
}

func TestFormat_MissingOptionalFields(t *testing.T) {
	f := Formatter{AddTraceID: true, DataType: "TXLOG"}

	// A record with nulls and without the usual columns still formats
	ev, err := f.Format(Record{{Name: "ID", Value: Int(1)}, {Name: "EVENT_DATA", Value: Null()}})
	require.NoError(t, err)

	_, err = ev.Encode()
	assert.NoError(t, err)
}

func TestFormat_RejectsNonFiniteNumbers(t *testing.T) {
	f := Formatter{DataType: "TXLOG"}

	_, err := f.Format(Record{{Name: "AMOUNT", Value: Float(math.NaN())}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMOUNT")
}

func TestFormat_SourceFieldCollision(t *testing.T) {
	f := Formatter{AddTraceID: false, DataType: "TXLOG"}

	// A source column named data_type overwrites the injected tag in place
	ev, err := f.Format(Record{{Name: FieldDataType, Value: String("LEGACY")}})
	require.NoError(t, err)
	require.Len(t, ev.Record, 1)
	v, _ := ev.Record.Get(FieldDataType)
	assert.Equal(t, "LEGACY", v.Text())
}
