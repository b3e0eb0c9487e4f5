package kpi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-kpi/pkg/expression"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ValueType string

const (
	ValueTypeInteger  ValueType = "Integer"
	ValueTypeNumber   ValueType = "Number"
	ValueTypePercent  ValueType = "Percent"
	ValueTypeAmount   ValueType = "Amount"
	ValueTypeText     ValueType = "Text"
	ValueTypeBoolean  ValueType = "Boolean"
	ValueTypeDate     ValueType = "Date"
	ValueTypeDateTime ValueType = "DateTime"
)

func (t ValueType) IsDate() bool {
	return t == ValueTypeDate || t == ValueTypeDateTime
}

func (t ValueType) IsNumeric() bool {
	switch t {
	case ValueTypeInteger, ValueTypeNumber, ValueTypePercent, ValueTypeAmount:
		return true
	}
	return false
}

func (t ValueType) valid() bool {
	switch t {
	case ValueTypeInteger, ValueTypeNumber, ValueTypePercent, ValueTypeAmount,
		ValueTypeText, ValueTypeBoolean, ValueTypeDate, ValueTypeDateTime:
		return true
	}
	return false
}

type ChartType string

const (
	ChartTypeArea   ChartType = "AreaChart"
	ChartTypeBar    ChartType = "BarChart"
	ChartTypeLine   ChartType = "LineChart"
	ChartTypePie    ChartType = "PieChart"
	ChartTypeMetric ChartType = "Metric"
)

// Duration accepts "168h", "7d", "90m" or a plain number of milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var millis int64
	if err := json.Unmarshal(data, &millis); err == nil {
		*d = Duration(time.Duration(millis) * time.Millisecond)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration extends time.ParseDuration with a whole-day unit ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// KPI describes one dashboard indicator: which index to search, the query
// to send and how to read the aggregation response into columns.
type KPI struct {
	ID          string    `json:"id"`
	Caption     string    `json:"caption"`
	Description string    `json:"description,omitempty"`
	ChartType   ChartType `json:"chartType,omitempty"`

	ESSearchIndex string               `json:"esSearchIndex"`
	ESSearchTypes []string             `json:"esSearchTypes,omitempty"`
	QueryTemplate *expression.Template `json:"queryTemplate" swaggertype:"string"`
	Fields        []KPIField           `json:"fields"`

	DefaultTimeRange Duration  `json:"defaultTimeRange,omitempty" swaggertype:"string"`
	CompareOffset    *Duration `json:"compareOffset,omitempty" swaggertype:"string"`

	// RefreshSchedule is a cron spec ("@every 1m", "*/5 * * * *") for live
	// subscribers. Empty means the KPI is only loaded on request.
	RefreshSchedule string `json:"refreshSchedule,omitempty"`
}

// GroupByField returns the field flagged as group-by, or nil.
func (k *KPI) GroupByField() *KPIField {
	for i := range k.Fields {
		if k.Fields[i].GroupBy {
			return &k.Fields[i]
		}
	}
	return nil
}

func (k *KPI) String() string {
	return fmt.Sprintf("KPI[%s, index=%s]", k.ID, k.ESSearchIndex)
}

// Validate checks a definition before it is accepted into the registry.
func (k *KPI) Validate() error {
	if k.ID == "" {
		return &ConfigurationError{Reason: "id is required"}
	}
	if k.ESSearchIndex == "" {
		return &ConfigurationError{KPIID: k.ID, Reason: "esSearchIndex is required"}
	}
	if k.QueryTemplate.IsEmpty() {
		return &ConfigurationError{KPIID: k.ID, Reason: "queryTemplate is required"}
	}
	if len(k.Fields) == 0 {
		return &ConfigurationError{KPIID: k.ID, Reason: "at least one field is required"}
	}

	groupBy := 0
	seen := make(map[string]bool, len(k.Fields))
	for i := range k.Fields {
		f := &k.Fields[i]
		if err := f.validate(); err != nil {
			return &ConfigurationError{KPIID: k.ID, Reason: err.Error()}
		}
		if seen[f.FieldName] {
			return &ConfigurationError{KPIID: k.ID, Reason: fmt.Sprintf("duplicate field %q", f.FieldName)}
		}
		seen[f.FieldName] = true
		if f.GroupBy {
			groupBy++
		}
	}
	if groupBy > 1 {
		return &ConfigurationError{KPIID: k.ID, Reason: "at most one field may be flagged groupBy"}
	}

	if k.CompareOffset != nil {
		if err := k.checkCompareOffset(); err != nil {
			return err
		}
		scalarOnly := true
		for i := range k.Fields {
			if !k.Fields[i].isScalar() {
				scalarOnly = false
				break
			}
		}
		if scalarOnly {
			return &ConfigurationError{KPIID: k.ID, Reason: "compareOffset cannot be used when every field reads a single value metric"}
		}
	}

	if k.RefreshSchedule != "" {
		if _, err := cronParser.Parse(k.RefreshSchedule); err != nil {
			return &ConfigurationError{KPIID: k.ID, Reason: fmt.Sprintf("invalid refreshSchedule: %v", err)}
		}
	}
	return nil
}

func (k *KPI) checkCompareOffset() error {
	g := k.GroupByField()
	if g == nil || !g.ValueType.IsDate() {
		return &ConfigurationError{KPIID: k.ID, Reason: "Only date group-by fields may be used with compareOffset"}
	}
	columns := make(map[string]bool, 2*len(k.Fields))
	for i := range k.Fields {
		columns[k.Fields[i].FieldName] = true
	}
	for i := range k.Fields {
		col := k.Fields[i].OffsetColumn()
		if columns[col] {
			return &ConfigurationError{KPIID: k.ID, Reason: fmt.Sprintf("offset column %q of field %q collides with another column", col, k.Fields[i].FieldName)}
		}
		columns[col] = true
	}
	return nil
}

// KPIField is one column of a KPI.
type KPIField struct {
	FieldName       string    `json:"fieldName"`
	OffsetFieldName string    `json:"offsetFieldName,omitempty"`
	Caption         string    `json:"caption,omitempty"`
	OffsetCaption   string    `json:"offsetCaption,omitempty"`
	ValueType       ValueType `json:"valueType"`
	GroupBy         bool      `json:"groupBy,omitempty"`

	// ESPath is the dotted path into a bucket: "key", "doc_count",
	// "<subAgg>" or "<subAgg>.<value>".
	ESPath string `json:"esPath"`

	Unit  string `json:"unit,omitempty"`
	Color string `json:"color,omitempty"`

	// NumberPrecision rounds Number/Percent/Amount values half-up; nil or
	// negative leaves them as reported.
	NumberPrecision *int `json:"numberPrecision,omitempty"`

	// Transform is an optional script expression over `value`, applied to
	// the extracted value before conversion.
	Transform string `json:"transform,omitempty"`
}

func (f *KPIField) validate() error {
	if f.FieldName == "" {
		return fmt.Errorf("fieldName is required")
	}
	if !f.ValueType.valid() {
		return fmt.Errorf("field %q: unknown valueType %q", f.FieldName, f.ValueType)
	}
	if len(f.Path()) == 0 {
		return fmt.Errorf("field %q: esPath is required", f.FieldName)
	}
	if f.Transform != "" {
		if _, err := compileTransform(f.Transform); err != nil {
			return fmt.Errorf("field %q: %w", f.FieldName, err)
		}
	}
	return nil
}

// Path returns the esPath split on dots.
func (f *KPIField) Path() []string {
	if f.ESPath == "" {
		return nil
	}
	return strings.Split(f.ESPath, ".")
}

// OffsetColumn is the column this field is written to in an offset range.
// The group-by column is always prefixed with "_"; a metric without an
// explicit offsetFieldName gets the same prefix so it never lands on the
// main range column.
func (f *KPIField) OffsetColumn() string {
	if f.GroupBy {
		if f.OffsetFieldName != "" {
			return "_" + f.OffsetFieldName
		}
		return "_" + f.FieldName
	}
	if f.OffsetFieldName != "" {
		return f.OffsetFieldName
	}
	return "_" + f.FieldName
}

func (f *KPIField) isScalar() bool {
	return f.ESPath == "value"
}

type LoadStatus string

const (
	LoadStatusSuccess LoadStatus = "success"
	LoadStatusFailed  LoadStatus = "failed"
)

// LoadAudit is one record of the kpi_load_audit collection.
type LoadAudit struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LoadID     string             `bson:"load_id" json:"load_id"`
	KPIID      string             `bson:"kpi_id" json:"kpi_id"`
	UserID     string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Trigger    string             `bson:"trigger" json:"trigger"`
	FromMillis *int64             `bson:"from_millis" json:"from_millis"`
	ToMillis   int64              `bson:"to_millis" json:"to_millis"`
	Ranges     int                `bson:"ranges" json:"ranges"`
	Cells      int                `bson:"cells" json:"cells"`
	DurationMs int64              `bson:"duration_ms" json:"duration_ms"`
	Status     LoadStatus         `bson:"status" json:"status"`
	Error      string             `bson:"error,omitempty" json:"error,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}
