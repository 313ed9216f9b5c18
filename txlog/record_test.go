package txlog

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf_SupportedTypes(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		kind Kind
		text string
	}{
		{"nil", nil, KindNull, ""},
		{"string", "hello", KindString, "hello"},
		{"bytes", []byte("raw"), KindString, "raw"},
		{"int64", int64(42), KindInt, "42"},
		{"int", 7, KindInt, "7"},
		{"float", 2.5, KindFloat, "2.5"},
		{"bool", true, KindBool, "true"},
		{"time", ts, KindTime, "2025-03-14T09:26:53"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.text, v.Text())
		})
	}
}

func TestValueOf_UnsupportedType(t *testing.T) {
	_, err := ValueOf(struct{}{})
	require.Error(t, err)
}

func TestRecord_GetSet(t *testing.T) {
	rec := Record{
		{Name: "ID", Value: Int(1)},
		{Name: "EVENT_TYPE", Value: String("CASE_UPDATE")},
	}

	v, ok := rec.Get("EVENT_TYPE")
	require.True(t, ok)
	assert.Equal(t, "CASE_UPDATE", v.Text())

	_, ok = rec.Get("MISSING")
	assert.False(t, ok)

	// Set replaces in place without reordering
	rec = rec.Set("EVENT_TYPE", String("CASE_CLOSE"))
	require.Len(t, rec, 2)
	assert.Equal(t, "EVENT_TYPE", rec[1].Name)
	assert.Equal(t, "CASE_CLOSE", rec[1].Value.Text())

	// Set appends when absent
	rec = rec.Set("CASE_ID", String("C-9"))
	require.Len(t, rec, 3)
	assert.Equal(t, "CASE_ID", rec[2].Name)
}

func TestRecord_MarshalJSON_PreservesOrder(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 500000000, time.UTC)
	rec := Record{
		{Name: "z_last", Value: Int(3)},
		{Name: "a_first", Value: String("v")},
		{Name: "created", Value: Time(ts)},
		{Name: "gone", Value: Null()},
		{Name: "ok", Value: Bool(false)},
	}

	data, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"z_last":3,"a_first":"v","created":"2025-01-02T03:04:05.5","gone":null,"ok":false}`,
		string(data))

	// Still a valid JSON object
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 5)
}

func TestRecord_MarshalJSON_EscapesStrings(t *testing.T) {
	rec := Record{{Name: "payload", Value: String("line1\n\"quoted\"")}}
	data, err := rec.MarshalJSON()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "line1\n\"quoted\"", decoded["payload"])
}

func TestRecord_MarshalJSON_NonFiniteFloat(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		rec := Record{{Name: "amount", Value: Float(bad)}}
		_, err := rec.MarshalJSON()
		assert.Error(t, err)
	}
}

func TestTimeLayout_TrimsZeroFraction(t *testing.T) {
	whole := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01T12:00:00", whole.Format(TimeLayout))

	micros := time.Date(2025, 6, 1, 12, 0, 0, 123456000, time.UTC)
	assert.Equal(t, "2025-06-01T12:00:00.123456", micros.Format(TimeLayout))
}
