package kpi

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go-kpi/internal/elastic"
	"go-kpi/pkg/expression"

	"go.uber.org/zap"
)

// Searcher is the part of the search client the loader needs.
type Searcher interface {
	Search(ctx context.Context, req elastic.SearchRequest) (*elastic.Response, error)
}

type LoaderOptions struct {
	// Strict fails the load on aggregations the loader cannot read instead
	// of logging and skipping them.
	Strict bool

	// Ambient is consulted for template variables the range does not define.
	Ambient expression.Context

	Zone   *time.Location
	Clock  func() time.Time
	Logger *zap.Logger
}

type loaderState int

const (
	stateFresh loaderState = iota
	stateConfigured
	stateLoading
	stateDone
	stateFailed
)

func (s loaderState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateConfigured:
		return "configured"
	case stateLoading:
		return "loading"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// Loader runs the searches of one KPI for one time window and folds the
// responses into a Result. A loader serves a single request.
type Loader struct {
	searcher   Searcher
	kpi        *KPI
	opts       LoaderOptions
	transforms map[string]*transform

	mu     sync.Mutex
	state  loaderState
	main   TimeRange
	ranges []TimeRange

	fieldNames FieldNameRewriter
	bucketKeys BucketKeyRewriter
}

func NewLoader(searcher Searcher, kpi *KPI, opts LoaderOptions) (*Loader, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if kpi == nil {
		return nil, fmt.Errorf("kpi is required")
	}
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transforms := make(map[string]*transform)
	for i := range kpi.Fields {
		f := &kpi.Fields[i]
		if f.Transform == "" {
			continue
		}
		t, err := compileTransform(f.Transform)
		if err != nil {
			return nil, &ConfigurationError{KPIID: kpi.ID, Reason: err.Error()}
		}
		transforms[f.FieldName] = t
	}

	return &Loader{
		searcher:   searcher,
		kpi:        kpi,
		opts:       opts,
		transforms: transforms,
		bucketKeys: BucketKeyRewriter{zone: opts.Zone},
	}, nil
}

// SetTimeRange resolves the main range and, when the KPI compares periods,
// the offset range. fromMillis <= 0 falls back to the KPI default window
// (or an open lower bound), toMillis <= 0 means now.
func (l *Loader) SetTimeRange(fromMillis, toMillis int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case stateLoading:
		return ErrLoaderBusy
	case stateFailed:
		return ErrLoaderFailed
	}

	if toMillis <= 0 {
		toMillis = l.opts.Clock().UnixMilli()
	}

	openFrom := false
	if fromMillis <= 0 {
		window := l.kpi.DefaultTimeRange.Std()
		if window < 0 {
			window = -window
		}
		if window == 0 {
			openFrom = true
		} else {
			fromMillis = toMillis - window.Milliseconds()
		}
	}

	if !openFrom && fromMillis > toMillis {
		return fmt.Errorf("%w: from=%d to=%d", ErrInvalidTimeRange, fromMillis, toMillis)
	}

	main := MainRange(fromMillis, toMillis, openFrom)
	ranges := []TimeRange{main}
	fieldNames := FieldNameRewriter{mode: fieldNameIdentity}
	bucketKeys := BucketKeyRewriter{mode: bucketKeyIdentity, zone: l.opts.Zone}

	if l.kpi.CompareOffset != nil {
		if err := l.kpi.checkCompareOffset(); err != nil {
			return err
		}
		ranges = append(ranges, OffsetRange(main, l.kpi.CompareOffset.Std()))
		fieldNames.mode = fieldNameOffset
		bucketKeys.mode = bucketKeyDateProject
	}

	l.main = main
	l.ranges = ranges
	l.fieldNames = fieldNames
	l.bucketKeys = bucketKeys
	l.state = stateConfigured
	return nil
}

// Ranges returns the resolved ranges, main first.
func (l *Loader) Ranges() []TimeRange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TimeRange(nil), l.ranges...)
}

// RetrieveData issues one search per range, main range first, and returns
// the complete result or an error; never a partial result. Transport errors
// from the search client are returned unwrapped.
func (l *Loader) RetrieveData(ctx context.Context) (*Result, error) {
	l.mu.Lock()
	switch l.state {
	case stateFresh:
		l.mu.Unlock()
		return nil, ErrNotConfigured
	case stateLoading:
		l.mu.Unlock()
		return nil, ErrLoaderBusy
	case stateFailed:
		l.mu.Unlock()
		return nil, ErrLoaderFailed
	}
	l.state = stateLoading
	ranges := l.ranges
	l.mu.Unlock()

	start := time.Now()
	l.opts.Logger.Debug("Retrieving KPI data",
		zap.String("kpi", l.kpi.ID),
		zap.Stringer("range", l.main))

	builder := NewBuilder(l.main)
	for _, tr := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, l.fail(err)
		}
		if err := l.loadRange(ctx, builder, tr); err != nil {
			return nil, l.fail(err)
		}
	}

	result := builder.SetTook(time.Since(start)).Build()

	l.mu.Lock()
	l.state = stateDone
	l.mu.Unlock()
	return result, nil
}

func (l *Loader) fail(err error) error {
	l.mu.Lock()
	l.state = stateFailed
	l.mu.Unlock()
	return err
}

func (l *Loader) loadRange(ctx context.Context, b *Builder, tr TimeRange) error {
	l.opts.Logger.Debug("Loading KPI range", zap.String("kpi", l.kpi.ID), zap.Stringer("range", tr))

	vars := expression.MapContext{}.
		Put("MainFromMillis", b.Range().FromMillis).
		Put("MainToMillis", b.Range().ToMillis).
		Put("FromMillis", tr.FromMillis).
		Put("ToMillis", tr.ToMillis)
	evalCtx := expression.Compose(vars, l.opts.Ambient)

	query, err := l.kpi.QueryTemplate.Evaluate(evalCtx, expression.Preserve)
	if err != nil {
		return &QueryExecutionError{KPIID: l.kpi.ID, Query: l.kpi.QueryTemplate.String(), Err: err}
	}

	l.opts.Logger.Debug("Executing KPI query", zap.String("kpi", l.kpi.ID), zap.String("query", query))

	resp, err := l.searcher.Search(ctx, elastic.SearchRequest{
		Index: l.kpi.ESSearchIndex,
		Types: l.kpi.ESSearchTypes,
		Body:  query,
	})
	if err != nil {
		if elastic.IsTransportError(err) {
			return err
		}
		return &QueryExecutionError{KPIID: l.kpi.ID, Query: query, Err: err}
	}
	if resp == nil {
		return &QueryExecutionError{KPIID: l.kpi.ID, Query: query, Err: fmt.Errorf("empty search response")}
	}

	l.opts.Logger.Debug("Got KPI response",
		zap.String("kpi", l.kpi.ID),
		zap.Int64("took_ms", resp.Took),
		zap.Int("aggregations", len(resp.Aggregations)))

	if err := l.collect(ctx, b, tr, resp); err != nil {
		return &QueryExecutionError{KPIID: l.kpi.ID, Query: query, Err: err}
	}
	return nil
}

func (l *Loader) collect(ctx context.Context, b *Builder, tr TimeRange, resp *elastic.Response) error {
	for _, agg := range resp.Aggregations {
		switch a := agg.(type) {
		case *elastic.MultiBucket:
			if err := l.collectBuckets(ctx, b, tr, a); err != nil {
				return err
			}

		case *elastic.SingleValue:
			if err := l.collectSingleValue(ctx, b, tr, a); err != nil {
				return err
			}

		default:
			unsupported := &UnsupportedAggregationError{Name: agg.AggregationName(), Type: agg.AggregationType()}
			if l.opts.Strict {
				return unsupported
			}
			l.opts.Logger.Warn("Skipping unsupported aggregation",
				zap.String("kpi", l.kpi.ID),
				zap.String("aggregation", unsupported.Name),
				zap.String("type", unsupported.Type))
		}
	}
	return nil
}

func (l *Loader) collectBuckets(ctx context.Context, b *Builder, tr TimeRange, agg *elastic.MultiBucket) error {
	for i := range agg.Buckets {
		bucket := &agg.Buckets[i]

		key, err := l.bucketKeys.Rewrite(bucket, tr)
		if err != nil {
			return fmt.Errorf("aggregation %s: %w", agg.Name, err)
		}

		for fi := range l.kpi.Fields {
			field := &l.kpi.Fields[fi]

			raw, err := l.fieldValue(ctx, field, extractBucketValue(field, bucket))
			if err != nil {
				return err
			}
			value, err := convertValue(field, raw, l.opts.Zone)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.FieldName, err)
			}
			if value == nil {
				continue
			}

			b.Put(agg.Name, key, l.fieldNames.Rewrite(field, tr), value)
		}
	}
	return nil
}

// Single value aggregations have no axis, so they never take part in a
// period comparison and are written under the plain field name.
func (l *Loader) collectSingleValue(ctx context.Context, b *Builder, tr TimeRange, agg *elastic.SingleValue) error {
	if !tr.IsMain() {
		return &ConfigurationError{
			KPIID:  l.kpi.ID,
			Reason: fmt.Sprintf("single value aggregation %s cannot be compared across periods", agg.Name),
		}
	}

	var scalar any
	if !math.IsNaN(agg.Value) {
		scalar = agg.Value
	}

	for fi := range l.kpi.Fields {
		field := &l.kpi.Fields[fi]
		if !field.isScalar() {
			return &ConfigurationError{
				KPIID:  l.kpi.ID,
				Reason: fmt.Sprintf("only esPath 'value' is allowed for field %s of single value aggregation %s", field.FieldName, agg.Name),
			}
		}

		raw, err := l.fieldValue(ctx, field, scalar)
		if err != nil {
			return err
		}
		value, err := convertValue(field, raw, l.opts.Zone)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.FieldName, err)
		}
		b.Put(agg.Name, NoKey, field.FieldName, value)
	}
	return nil
}

func (l *Loader) fieldValue(ctx context.Context, field *KPIField, raw any) (any, error) {
	t, ok := l.transforms[field.FieldName]
	if !ok || raw == nil {
		return raw, nil
	}
	out, err := t.Apply(ctx, raw)
	if err != nil {
		return nil, &ConversionError{Value: raw, Target: "transform of " + field.FieldName, Err: err}
	}
	return out, nil
}

// extractBucketValue walks field.esPath into the bucket. A path ending on a
// metric object yields that metric's value.
func extractBucketValue(field *KPIField, bucket *elastic.Bucket) any {
	v, ok := bucket.Lookup(field.Path())
	if !ok {
		return nil
	}
	if m, isMap := v.(map[string]any); isMap {
		if inner, has := m["value"]; has {
			return inner
		}
	}
	return v
}
