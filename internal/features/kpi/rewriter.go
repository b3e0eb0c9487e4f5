package kpi

import (
	"encoding/json"
	"fmt"
	"time"

	"go-kpi/internal/elastic"
)

type fieldNameMode int

const (
	fieldNameIdentity fieldNameMode = iota
	fieldNameOffset
)

// FieldNameRewriter picks the column a field is written to for a range.
type FieldNameRewriter struct {
	mode fieldNameMode
}

func (r FieldNameRewriter) Rewrite(f *KPIField, tr TimeRange) string {
	if r.mode == fieldNameIdentity || tr.IsMain() {
		return f.FieldName
	}
	return f.OffsetColumn()
}

type bucketKeyMode int

const (
	bucketKeyIdentity bucketKeyMode = iota
	bucketKeyDateProject
)

// BucketKeyRewriter turns a bucket key into the dataset row key for a range.
type BucketKeyRewriter struct {
	mode bucketKeyMode
	zone *time.Location
}

// Rewrite in date-project mode reads the key as epoch millis, moves it onto
// the main axis and renders it as a JSON date. Identity mode keeps the key.
func (r BucketKeyRewriter) Rewrite(b *elastic.Bucket, tr TimeRange) (string, error) {
	if r.mode == bucketKeyDateProject {
		ms, err := toMillis(b.Key)
		if err != nil {
			return "", err
		}
		return JSONDate(tr.SubtractOffset(ms), r.zone), nil
	}
	return keyAsJSON(b.Key)
}

func keyAsJSON(key any) (string, error) {
	switch k := key.(type) {
	case nil:
		return "null", nil
	case string:
		return k, nil
	case json.Number:
		return k.String(), nil
	case fmt.Stringer:
		return k.String(), nil
	}
	// composite keys
	raw, err := json.Marshal(key)
	if err != nil {
		return "", &ConversionError{Value: key, Target: "bucket key", Err: err}
	}
	return string(raw), nil
}
