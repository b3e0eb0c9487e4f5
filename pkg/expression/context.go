package expression

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Context resolves template variables by name.
type Context interface {
	Get(name string) (any, bool)
}

// MapContext is the plain map-backed Context.
type MapContext map[string]any

func (m MapContext) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Put sets a variable and returns the map so calls can be chained.
func (m MapContext) Put(name string, value any) MapContext {
	m[name] = value
	return m
}

type composedContext struct {
	inner    Context
	fallback Context
}

// Compose layers inner over fallback. The fallback is only consulted when
// inner does not know the name.
func Compose(inner, fallback Context) Context {
	if inner == nil {
		inner = MapContext{}
	}
	if fallback == nil {
		return inner
	}
	return &composedContext{inner: inner, fallback: fallback}
}

func (c *composedContext) Get(name string) (any, bool) {
	if v, ok := c.inner.Get(name); ok {
		return v, true
	}
	return c.fallback.Get(name)
}

// FormatValue renders a context value the way it is substituted into a template.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case time.Duration:
		return strconv.FormatInt(val.Milliseconds(), 10)
	case []string:
		return strings.Join(val, ",")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
