package kpi

import (
	"bytes"
	"encoding/json"
	"time"
)

// NoKey is the row key of single value aggregations, which have no axis.
const NoKey = "NO_KEY"

type Cell struct {
	Field string
	Value any
}

type Row struct {
	Key   string
	Cells []Cell
}

type Dataset struct {
	Name string
	Rows []Row
}

// Result is the immutable outcome of one load: datasets keyed by
// aggregation, then row key, then column, each level in insertion order.
type Result struct {
	Range    TimeRange
	Took     time.Duration
	Datasets []Dataset
}

// Dataset returns the dataset for an aggregation, or nil.
func (r *Result) Dataset(name string) *Dataset {
	for i := range r.Datasets {
		if r.Datasets[i].Name == name {
			return &r.Datasets[i]
		}
	}
	return nil
}

// Value looks up one cell.
func (r *Result) Value(agg, key, field string) (any, bool) {
	ds := r.Dataset(agg)
	if ds == nil {
		return nil, false
	}
	for _, row := range ds.Rows {
		if row.Key != key {
			continue
		}
		for _, c := range row.Cells {
			if c.Field == field {
				return c.Value, true
			}
		}
	}
	return nil, false
}

// CellCount is the number of stored cells over all datasets.
func (r *Result) CellCount() int {
	n := 0
	for _, ds := range r.Datasets {
		for _, row := range ds.Rows {
			n += len(row.Cells)
		}
	}
	return n
}

// Fields returns the column names of a dataset in first-seen order.
func (d *Dataset) Fields() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, row := range d.Rows {
		for _, c := range row.Cells {
			if !seen[c.Field] {
				seen[c.Field] = true
				fields = append(fields, c.Field)
			}
		}
	}
	return fields
}

func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	rangeJSON, err := json.Marshal(r.Range)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"range":`)
	buf.Write(rangeJSON)
	buf.WriteString(`,"took":`)
	buf.WriteString(jsonInt(r.Took.Milliseconds()))
	buf.WriteString(`,"datasets":{`)
	for i, ds := range r.Datasets {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, ds.Name)
		buf.WriteByte('{')
		for j, row := range ds.Rows {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, row.Key)
			buf.WriteByte('{')
			for k, c := range row.Cells {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeKey(&buf, c.Field)
				v, err := json.Marshal(c.Value)
				if err != nil {
					return nil, err
				}
				buf.Write(v)
			}
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// Builder accumulates cells during a load. It is owned by one loader and
// is not safe for concurrent use.
type Builder struct {
	rng      TimeRange
	took     time.Duration
	datasets []Dataset
	dsIndex  map[string]int
	rowIndex []map[string]int
}

func NewBuilder(rng TimeRange) *Builder {
	return &Builder{rng: rng, dsIndex: make(map[string]int)}
}

func (b *Builder) Range() TimeRange { return b.rng }

func (b *Builder) SetTook(d time.Duration) *Builder {
	b.took = d
	return b
}

// Put stores one cell. Nil values are dropped; a repeated (agg, key, field)
// replaces the earlier value in place.
func (b *Builder) Put(agg, key, field string, value any) {
	if value == nil {
		return
	}

	di, ok := b.dsIndex[agg]
	if !ok {
		di = len(b.datasets)
		b.dsIndex[agg] = di
		b.datasets = append(b.datasets, Dataset{Name: agg})
		b.rowIndex = append(b.rowIndex, make(map[string]int))
	}
	ds := &b.datasets[di]

	ri, ok := b.rowIndex[di][key]
	if !ok {
		ri = len(ds.Rows)
		b.rowIndex[di][key] = ri
		ds.Rows = append(ds.Rows, Row{Key: key})
	}
	row := &ds.Rows[ri]

	for i := range row.Cells {
		if row.Cells[i].Field == field {
			row.Cells[i].Value = value
			return
		}
	}
	row.Cells = append(row.Cells, Cell{Field: field, Value: value})
}

// Build hands the accumulated datasets to the result. The builder must not
// be used afterwards.
func (b *Builder) Build() *Result {
	res := &Result{Range: b.rng, Took: b.took, Datasets: b.datasets}
	b.datasets = nil
	b.dsIndex = nil
	b.rowIndex = nil
	return res
}
