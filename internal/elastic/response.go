package elastic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
)

// Aggregation is one top-level (or nested) aggregation of a search response.
// It is one of *MultiBucket, *SingleValue or *Other.
type Aggregation interface {
	AggregationName() string
	AggregationType() string
	aggregation()
}

// MultiBucket is any aggregation producing a sequence of keyed buckets
// (terms, histograms, ranges, filters, ...).
type MultiBucket struct {
	Name    string
	Type    string
	Buckets []Bucket
}

// SingleValue is a numeric metric with exactly one value. Value is NaN when
// the cluster reported null (e.g. avg over zero documents).
type SingleValue struct {
	Name          string
	Type          string
	Value         float64
	ValueAsString string
}

// Other is every aggregation shape the loader does not understand.
type Other struct {
	Name string
	Type string
	Raw  json.RawMessage
}

func (a *MultiBucket) AggregationName() string { return a.Name }
func (a *MultiBucket) AggregationType() string { return a.Type }
func (*MultiBucket) aggregation()              {}

func (a *SingleValue) AggregationName() string { return a.Name }
func (a *SingleValue) AggregationType() string { return a.Type }
func (*SingleValue) aggregation()              {}

func (a *Other) AggregationName() string { return a.Name }
func (a *Other) AggregationType() string { return a.Type }
func (*Other) aggregation()              {}

// Bucket is one group of a multi-bucket aggregation.
//
// Key holds the decoded bucket key: json.Number for numeric keys (date
// histograms report epoch millis), string for terms, map[string]any for
// composite keys.
type Bucket struct {
	Key         any
	KeyAsString string
	DocCount    int64

	// values holds every other member of the bucket object, decoded, with
	// typed-key prefixes stripped from sub-aggregation names.
	values map[string]any
	order  []string
}

// Lookup walks path through the bucket: the first element names a member of
// the bucket (usually a sub-aggregation), the rest descend into it.
func (b *Bucket) Lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = b.values
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SubAggregationNames returns sub-aggregation names in response order.
func (b *Bucket) SubAggregationNames() []string {
	var names []string
	for _, n := range b.order {
		if _, ok := b.values[n].(map[string]any); ok {
			names = append(names, n)
		}
	}
	return names
}

// Response is the part of a search response the KPI loader consumes.
type Response struct {
	Took         int64
	TimedOut     bool
	TotalHits    int64
	Aggregations []Aggregation
}

var multiBucketTypes = map[string]bool{
	"terms": true, "sterms": true, "lterms": true, "dterms": true, "umterms": true,
	"multi_terms": true, "rare_terms": true, "srareterms": true, "lrareterms": true,
	"sigsterms": true, "siglterms": true, "significant_terms": true,
	"histogram": true, "date_histogram": true, "auto_date_histogram": true,
	"range": true, "date_range": true, "ip_range": true,
	"filters": true, "composite": true,
}

var singleValueTypes = map[string]bool{
	"avg": true, "sum": true, "min": true, "max": true, "value_count": true,
	"cardinality": true, "median_absolute_deviation": true, "weighted_avg": true,
	"simple_value": true, "derivative": true,
}

// DecodeResponse parses a search response body, keeping aggregations and
// buckets in the order the cluster returned them.
func DecodeResponse(r io.Reader) (*Response, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var envelope struct {
		Took     int64 `json:"took"`
		TimedOut bool  `json:"timed_out"`
		Hits     struct {
			Total json.RawMessage `json:"total"`
		} `json:"hits"`
		Aggregations json.RawMessage `json:"aggregations"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	resp := &Response{
		Took:      envelope.Took,
		TimedOut:  envelope.TimedOut,
		TotalHits: decodeTotalHits(envelope.Hits.Total),
	}

	if len(envelope.Aggregations) == 0 || string(envelope.Aggregations) == "null" {
		return resp, nil
	}

	members, err := decodeOrderedObject(envelope.Aggregations)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregations: %w", err)
	}
	for _, m := range members {
		agg, err := parseAggregation(m.key, m.raw)
		if err != nil {
			return nil, err
		}
		resp.Aggregations = append(resp.Aggregations, agg)
	}
	return resp, nil
}

// total is either a number (pre 7.0) or {"value": n, "relation": "eq"}.
func decodeTotalHits(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	return 0
}

// SplitTypedKey splits "date_histogram#per_day" into its type and name.
func SplitTypedKey(key string) (typ, name string) {
	if i := strings.IndexByte(key, '#'); i > 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

func parseAggregation(key string, raw json.RawMessage) (Aggregation, error) {
	typ, name := SplitTypedKey(key)

	members, err := decodeOrderedObject(raw)
	if err != nil {
		return &Other{Name: name, Type: typ, Raw: raw}, nil
	}
	byKey := make(map[string]json.RawMessage, len(members))
	for _, m := range members {
		byKey[m.key] = m.raw
	}

	_, hasBuckets := byKey["buckets"]
	_, hasValue := byKey["value"]

	switch {
	case typ != "" && multiBucketTypes[typ], typ == "" && hasBuckets:
		if !hasBuckets {
			return nil, fmt.Errorf("aggregation %q of type %s has no buckets", name, typ)
		}
		buckets, err := parseBuckets(byKey["buckets"])
		if err != nil {
			return nil, fmt.Errorf("aggregation %q: %w", name, err)
		}
		return &MultiBucket{Name: name, Type: typ, Buckets: buckets}, nil

	case typ != "" && singleValueTypes[typ], typ == "" && hasValue:
		sv := &SingleValue{Name: name, Type: typ, Value: math.NaN()}
		if v, ok := decodeValue(byKey["value"]).(json.Number); ok {
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("aggregation %q: invalid value %s", name, v)
			}
			sv.Value = f
		}
		if s, ok := decodeValue(byKey["value_as_string"]).(string); ok {
			sv.ValueAsString = s
		}
		return sv, nil
	}

	return &Other{Name: name, Type: typ, Raw: raw}, nil
}

func parseBuckets(raw json.RawMessage) ([]Bucket, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	// keyed buckets: {"name": {...}, ...}
	if trimmed[0] == '{' {
		members, err := decodeOrderedObject(trimmed)
		if err != nil {
			return nil, err
		}
		buckets := make([]Bucket, 0, len(members))
		for _, m := range members {
			b, err := parseBucket(m.raw)
			if err != nil {
				return nil, err
			}
			if b.Key == nil {
				b.Key = m.key
				b.values["key"] = b.Key
			}
			buckets = append(buckets, b)
		}
		return buckets, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("invalid buckets: %w", err)
	}
	buckets := make([]Bucket, 0, len(items))
	for _, item := range items {
		b, err := parseBucket(item)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func parseBucket(raw json.RawMessage) (Bucket, error) {
	members, err := decodeOrderedObject(raw)
	if err != nil {
		return Bucket{}, fmt.Errorf("invalid bucket: %w", err)
	}

	b := Bucket{values: make(map[string]any, len(members))}
	for _, m := range members {
		switch m.key {
		case "key":
			b.Key = decodeValue(m.raw)
		case "key_as_string":
			b.KeyAsString, _ = decodeValue(m.raw).(string)
		case "doc_count":
			if n, ok := decodeValue(m.raw).(json.Number); ok {
				b.DocCount, _ = n.Int64()
			}
		default:
			typ, name := SplitTypedKey(m.key)
			v := decodeValue(m.raw)
			if typ != "" {
				v = stripAggregationKeys(v)
			}
			b.values[name] = v
			b.order = append(b.order, name)
		}
	}
	// key and doc_count stay addressable through Lookup as well
	b.values["key"] = b.Key
	b.values["doc_count"] = b.DocCount
	if b.KeyAsString != "" {
		b.values["key_as_string"] = b.KeyAsString
	}
	return b, nil
}

type member struct {
	key string
	raw json.RawMessage
}

// decodeOrderedObject returns the members of a JSON object in document order.
func decodeOrderedObject(raw json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, member{key: key, raw: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

// decodeValue decodes raw JSON keeping numbers as json.Number.
func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// stripAggregationKeys removes typed-key prefixes from the sub-aggregation
// names of a decoded aggregation body. Only bucket members carry aggregation
// names; keys, hits and other payload are left as returned.
func stripAggregationKeys(v any) any {
	agg, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if buckets, has := agg["buckets"]; has {
		agg["buckets"] = stripBucketsKeys(buckets)
	}
	return agg
}

func stripBucketsKeys(v any) any {
	switch val := v.(type) {
	case []any:
		for i := range val {
			val[i] = stripBucketKeys(val[i])
		}
	case map[string]any:
		// keyed buckets: member names are bucket keys, not aggregations
		for k, child := range val {
			val[k] = stripBucketKeys(child)
		}
	}
	return v
}

func stripBucketKeys(v any) any {
	bucket, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(bucket))
	for k, child := range bucket {
		typ, name := SplitTypedKey(k)
		if typ == "" {
			out[k] = child
			continue
		}
		out[name] = stripAggregationKeys(child)
	}
	return out
}
