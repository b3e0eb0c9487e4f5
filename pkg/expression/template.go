package expression

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OnUnresolved decides what Evaluate does with a variable the context cannot resolve.
type OnUnresolved int

const (
	// Preserve leaves the original ${name} token in the output.
	Preserve OnUnresolved = iota
	// Empty substitutes an empty string.
	Empty
	// Fail aborts evaluation with an UnresolvedVariableError.
	Fail
)

type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("variable not found in context: %s", e.Name)
}

type chunk struct {
	text  string // literal text, or the raw ${...} token for variables
	name  string
	isVar bool
}

// Template is a string with ${name} placeholders, parsed once into
// alternating literal and variable chunks. It is immutable and safe to share.
type Template struct {
	source string
	chunks []chunk
}

// Parse splits source into chunks. A "${" without a closing brace, or with an
// empty name, is kept as literal text.
func Parse(source string) *Template {
	t := &Template{source: source}

	var lit strings.Builder
	rest := source
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			lit.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			lit.WriteString(rest)
			break
		}
		end += start + 2
		if inner := strings.LastIndex(rest[:end], "${"); inner > start {
			start = inner
		}

		name := strings.TrimSpace(rest[start+2 : end])
		if name == "" {
			lit.WriteString(rest[:end+1])
			rest = rest[end+1:]
			continue
		}

		lit.WriteString(rest[:start])
		if lit.Len() > 0 {
			t.chunks = append(t.chunks, chunk{text: lit.String()})
			lit.Reset()
		}
		t.chunks = append(t.chunks, chunk{text: rest[start : end+1], name: name, isVar: true})
		rest = rest[end+1:]
	}
	if lit.Len() > 0 {
		t.chunks = append(t.chunks, chunk{text: lit.String()})
	}
	return t
}

func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.source
}

// IsEmpty reports whether the template has no content at all.
func (t *Template) IsEmpty() bool {
	return t == nil || strings.TrimSpace(t.source) == ""
}

// Variables returns the distinct variable names in order of first appearance.
func (t *Template) Variables() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, c := range t.chunks {
		if c.isVar && !seen[c.name] {
			seen[c.name] = true
			names = append(names, c.name)
		}
	}
	return names
}

// Evaluate concatenates the literal chunks with the resolved variables.
func (t *Template) Evaluate(ctx Context, policy OnUnresolved) (string, error) {
	if t == nil {
		return "", nil
	}
	if ctx == nil {
		ctx = MapContext{}
	}

	var sb strings.Builder
	sb.Grow(len(t.source))
	for _, c := range t.chunks {
		if !c.isVar {
			sb.WriteString(c.text)
			continue
		}
		if v, ok := ctx.Get(c.name); ok {
			sb.WriteString(FormatValue(v))
			continue
		}
		switch policy {
		case Preserve:
			sb.WriteString(c.text)
		case Empty:
		default:
			return "", &UnresolvedVariableError{Name: c.name}
		}
	}
	return sb.String(), nil
}

func (t *Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = *Parse(s)
	return nil
}
