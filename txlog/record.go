package txlog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeLayout is the canonical textual form for temporal fields on the wire.
// Fractional seconds are trimmed when zero.
const TimeLayout = "2006-01-02T15:04:05.999999"

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

// Value is a tagged scalar carried by a Record field. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	bln  bool
	ts   time.Time
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Int(i int64) Value      { return Value{kind: KindInt, num: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, bln: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// ValueOf converts a value produced by a database/sql scan into a tagged Value.
// Unsupported driver types are an error so the offending record can be reported
// instead of silently mangled.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case int64:
		return Int(x), nil
	case int:
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return Time(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported column type %T", v)
	}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Time returns the temporal payload, valid only when Kind is KindTime.
func (v Value) Time() (time.Time, bool) {
	return v.ts, v.kind == KindTime
}

// Text returns the canonical textual form of the value. Null renders empty.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bln)
	case KindTime:
		return v.ts.Format(TimeLayout)
	default:
		return ""
	}
}

// appendJSON appends the JSON encoding of v to buf.
// Non-finite floats are not representable in JSON and error out.
func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindString:
		enc, err := json.Marshal(v.str)
		if err != nil {
			return nil, err
		}
		return append(buf, enc...), nil
	case KindInt:
		return strconv.AppendInt(buf, v.num, 10), nil
	case KindFloat:
		if math.IsNaN(v.flt) || math.IsInf(v.flt, 0) {
			return nil, fmt.Errorf("non-finite number %v cannot be encoded", v.flt)
		}
		return strconv.AppendFloat(buf, v.flt, 'g', -1, 64), nil
	case KindBool:
		return strconv.AppendBool(buf, v.bln), nil
	case KindTime:
		buf = append(buf, '"')
		buf = v.ts.AppendFormat(buf, TimeLayout)
		return append(buf, '"'), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// Field is a single named column of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping of column name to value. Field order is the
// order columns were fetched in and is preserved through formatting and
// encoding, so records pass through arbitrary source schemas untouched.
type Record []Field

// Get returns the value for the named field.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named field in place, or appends it when absent.
func (r Record) Set(name string, v Value) Record {
	for i, f := range r {
		if f.Name == name {
			r[i].Value = v
			return r
		}
	}
	return append(r, Field{Name: name, Value: v})
}

// MarshalJSON encodes the record as a JSON object preserving field order.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64+len(r)*24)
	buf = append(buf, '{')
	for i, f := range r {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf, err = f.Value.appendJSON(buf)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return append(buf, '}'), nil
}
