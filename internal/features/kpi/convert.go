package kpi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// JSONDateLayout is the date-time form used in every JSON payload: ISO-8601
// with milliseconds and an explicit offset.
const JSONDateLayout = "2006-01-02T15:04:05.000-07:00"

// JSONDate renders epoch millis in zone using JSONDateLayout.
func JSONDate(millis int64, zone *time.Location) string {
	if zone == nil {
		zone = time.UTC
	}
	return time.UnixMilli(millis).In(zone).Format(JSONDateLayout)
}

// toMillis reduces a bucket key to epoch millis. Strings are rejected so a
// key is never silently reinterpreted.
func toMillis(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, &ConversionError{Value: v, Target: "millis", Err: err}
		}
		return int64(f), nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float32:
		return int64(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, &ConversionError{Value: v, Target: "millis"}
		}
		return int64(val), nil
	case interface{ UnixMilli() int64 }:
		return val.UnixMilli(), nil
	}
	return 0, &ConversionError{Value: v, Target: "millis"}
}

// convertValue normalizes a raw response value to the JSON representation
// of the field's type. A nil result means "no cell".
func convertValue(f *KPIField, v any, zone *time.Location) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.ValueType {
	case ValueTypeInteger:
		fl, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil, wrapConversion(v, f.ValueType, err)
		}
		if math.IsNaN(fl) || math.IsInf(fl, 0) {
			return nil, nil
		}
		if n, isNum := v.(json.Number); isNum {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}
		return int64(fl), nil

	case ValueTypeNumber, ValueTypePercent, ValueTypeAmount:
		fl, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil, wrapConversion(v, f.ValueType, err)
		}
		if math.IsNaN(fl) || math.IsInf(fl, 0) {
			return nil, nil
		}
		return roundTo(fl, f.NumberPrecision), nil

	case ValueTypeText:
		switch val := v.(type) {
		case string:
			return val, nil
		case json.Number:
			return val.String(), nil
		case bool:
			return strconv.FormatBool(val), nil
		case fmt.Stringer:
			return val.String(), nil
		case int, int64, float64:
			return fmt.Sprint(val), nil
		}
		return nil, wrapConversion(v, f.ValueType, nil)

	case ValueTypeBoolean:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, wrapConversion(v, f.ValueType, err)
			}
			return b, nil
		}
		fl, ok, err := toFloat(v)
		if err != nil || !ok {
			return nil, wrapConversion(v, f.ValueType, err)
		}
		return fl != 0, nil

	case ValueTypeDate, ValueTypeDateTime:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, wrapConversion(v, f.ValueType, err)
			}
			return JSONDate(t.UnixMilli(), zone), nil
		}
		ms, err := toMillis(v)
		if err != nil {
			return nil, wrapConversion(v, f.ValueType, err)
		}
		return JSONDate(ms, zone), nil
	}

	return nil, wrapConversion(v, f.ValueType, nil)
}

// toFloat reports ok=false for values that are not numbers at all.
func toFloat(v any) (float64, bool, error) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil, err
	case float64:
		return val, true, nil
	case float32:
		return float64(val), true, nil
	case int:
		return float64(val), true, nil
	case int64:
		return float64(val), true, nil
	case int32:
		return float64(val), true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil, err
	}
	return 0, false, nil
}

func roundTo(f float64, precision *int) float64 {
	if precision == nil || *precision < 0 {
		return f
	}
	p := math.Pow(10, float64(*precision))
	return math.Round(f*p) / p
}

func wrapConversion(v any, t ValueType, err error) error {
	return &ConversionError{Value: v, Target: string(t), Err: err}
}
