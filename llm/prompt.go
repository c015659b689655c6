package llm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingVariable is returned when a template placeholder has no value.
var ErrMissingVariable = errors.New("missing template variable")

// PromptTemplate renders text containing {name} placeholders. A doubled
// brace ("{{" or "}}") emits a literal brace.
type PromptTemplate struct {
	text string
}

// NewPromptTemplate returns a template for text.
func NewPromptTemplate(text string) PromptTemplate {
	return PromptTemplate{text: text}
}

// Variables lists the distinct placeholder names, sorted.
func (p PromptTemplate) Variables() []string {
	seen := map[string]struct{}{}
	_, _ = p.walk(func(name string) (string, error) {
		seen[name] = struct{}{}
		return "", nil
	})
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render substitutes params. Every placeholder must have a value.
func (p PromptTemplate) Render(params map[string]any) (string, error) {
	return p.walk(func(name string) (string, error) {
		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
		return fmt.Sprint(v), nil
	})
}

func (p PromptTemplate) String() string { return p.text }

func (p PromptTemplate) walk(resolve func(string) (string, error)) (string, error) {
	var b strings.Builder
	s := p.text
	for len(s) > 0 {
		switch {
		case strings.HasPrefix(s, "{{"):
			b.WriteByte('{')
			s = s[2:]
		case strings.HasPrefix(s, "}}"):
			b.WriteByte('}')
			s = s[2:]
		case s[0] == '{':
			end := strings.IndexByte(s, '}')
			name := ""
			if end > 0 {
				name = strings.TrimSpace(s[1:end])
			}
			if end < 0 || !isIdent(name) {
				b.WriteByte('{')
				s = s[1:]
				continue
			}
			v, err := resolve(name)
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			s = s[end+1:]
		default:
			b.WriteByte(s[0])
			s = s[1:]
		}
	}
	return b.String(), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && r != '.' && r != '-' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
			return false
		}
	}
	return true
}
