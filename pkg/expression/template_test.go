package expression

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariables(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{name: "no variables", source: `{"size":0}`, want: nil},
		{name: "single", source: `{"gte":${FromMillis}}`, want: []string{"FromMillis"}},
		{name: "repeated keeps first", source: `${A} ${B} ${A}`, want: []string{"A", "B"}},
		{name: "whitespace trimmed", source: `${ ToMillis }`, want: []string{"ToMillis"}},
		{name: "unterminated is literal", source: `{"a":"${Oops"}`, want: nil},
		{name: "empty name is literal", source: `x${}y`, want: nil},
		{name: "nested opener", source: `${a${B}`, want: []string{"B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.source).Variables())
		})
	}
}

func TestEvaluatePolicies(t *testing.T) {
	tmpl := Parse(`{"range":{"ts":{"gte":${FromMillis},"lt":${ToMillis}}},"user":"${#UserID}"}`)
	ctx := MapContext{"FromMillis": int64(10), "ToMillis": int64(20)}

	t.Run("preserve", func(t *testing.T) {
		got, err := tmpl.Evaluate(ctx, Preserve)
		require.NoError(t, err)
		assert.Equal(t, `{"range":{"ts":{"gte":10,"lt":20}},"user":"${#UserID}"}`, got)
	})
	t.Run("empty", func(t *testing.T) {
		got, err := tmpl.Evaluate(ctx, Empty)
		require.NoError(t, err)
		assert.Equal(t, `{"range":{"ts":{"gte":10,"lt":20}},"user":""}`, got)
	})
	t.Run("fail", func(t *testing.T) {
		_, err := tmpl.Evaluate(ctx, Fail)
		var unresolved *UnresolvedVariableError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, "#UserID", unresolved.Name)
	})
}

func TestEvaluateLiteralsUntouched(t *testing.T) {
	for _, source := range []string{"", "plain", "${", "}${", "a${}b", "${unterminated"} {
		got, err := Parse(source).Evaluate(nil, Preserve)
		require.NoError(t, err)
		assert.Equal(t, source, got)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	tmpl := Parse(`{"from":${MainFromMillis},"to":${MainToMillis},"x":${Missing}}`)
	ctx := MapContext{"MainFromMillis": int64(1699395200000), "MainToMillis": int64(1700000000000)}

	first, err := tmpl.Evaluate(ctx, Preserve)
	require.NoError(t, err)
	second, err := Parse(first).Evaluate(ctx, Preserve)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComposeFallback(t *testing.T) {
	inner := MapContext{"FromMillis": int64(1)}
	ambient := MapContext{"FromMillis": int64(99), "#UserID": "u-1"}
	ctx := Compose(inner, ambient)

	v, ok := ctx.Get("FromMillis")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	v, ok = ctx.Get("#UserID")
	require.True(t, ok)
	assert.Equal(t, "u-1", v)

	_, ok = ctx.Get("nope")
	assert.False(t, ok)

	assert.Equal(t, inner, Compose(inner, nil))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{42, "42"},
		{int64(-7), "-7"},
		{1.5, "1.5"},
		{true, "true"},
		{[]string{"a", "b"}, "a,b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestTemplateJSON(t *testing.T) {
	var tmpl Template
	require.NoError(t, tmpl.UnmarshalJSON([]byte(`"{\"gte\":${FromMillis}}"`)))
	assert.Equal(t, []string{"FromMillis"}, tmpl.Variables())

	out, err := tmpl.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"{\"gte\":${FromMillis}}"`, string(out))
}
