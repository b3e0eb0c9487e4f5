package kpi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

const transformResultVar = "__result"

// transformModules are imported under their own names, so a transform can
// say text.to_upper(value) or math.floor(value).
var transformModules = []string{"math", "text", "times"}

// transform is a compiled field script. Each Apply runs on a clone, so one
// transform may serve concurrent loaders.
type transform struct {
	source   string
	compiled *tengo.Compiled
}

func compileTransform(source string) (*transform, error) {
	var src strings.Builder
	for _, m := range transformModules {
		fmt.Fprintf(&src, "%s := import(%q)\n", m, m)
	}
	src.WriteString(transformResultVar + " := (" + source + ")")

	script := tengo.NewScript([]byte(src.String()))
	script.SetImports(stdlib.GetModuleMap(transformModules...))
	if err := script.Add("value", nil); err != nil {
		return nil, err
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile transform %q: %w", source, err)
	}
	return &transform{source: source, compiled: compiled}, nil
}

func (t *transform) Apply(ctx context.Context, value any) (any, error) {
	c := t.compiled.Clone()
	if err := c.Set("value", scriptValue(value)); err != nil {
		return nil, fmt.Errorf("failed to bind transform input: %w", err)
	}
	if err := c.RunContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to run transform %q: %w", t.source, err)
	}
	return c.Get(transformResultVar).Value(), nil
}

// scriptValue maps response values onto types the script runtime accepts.
func scriptValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = scriptValue(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = scriptValue(child)
		}
		return out
	}
	return v
}
