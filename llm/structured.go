package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Structured is a type a model can be asked to produce as JSON.
type Structured interface {
	Validate() error
	JSONSchema() map[string]interface{}
}

// StructuredResponse is a decoded model answer. Validation is set even when
// the value fails Validate.
type StructuredResponse[T Structured] struct {
	Data        T                 `json:"data"`
	RawResponse *Response         `json:"raw_response"`
	Usage       *Usage            `json:"usage,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
}

type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors,omitempty"`
	Retries int      `json:"retries"`
	RawJSON string   `json:"raw_json,omitempty"`
}

// GenerateSchema derives a JSON schema from v's type. Struct tags drive it:
// json names the property (omitempty makes it optional), description
// documents it and enum lists allowed values separated by "|".
func GenerateSchema(v interface{}) map[string]interface{} {
	t := reflect.TypeOf(v)
	if t == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return schemaFor(t, reflect.StructTag(""))
}

var kindTypes = map[reflect.Kind]string{
	reflect.String:  "string",
	reflect.Bool:    "boolean",
	reflect.Int:     "integer",
	reflect.Int8:    "integer",
	reflect.Int16:   "integer",
	reflect.Int32:   "integer",
	reflect.Int64:   "integer",
	reflect.Uint:    "integer",
	reflect.Uint8:   "integer",
	reflect.Uint16:  "integer",
	reflect.Uint32:  "integer",
	reflect.Uint64:  "integer",
	reflect.Float32: "number",
	reflect.Float64: "number",
	reflect.Map:     "object",
}

func schemaFor(t reflect.Type, tag reflect.StructTag) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	schema := map[string]interface{}{}
	switch k := t.Kind(); {
	case k == reflect.Struct:
		schema = objectSchema(t)
	case k == reflect.Slice || k == reflect.Array:
		schema["type"] = "array"
		schema["items"] = schemaFor(t.Elem(), "")
	case k == reflect.Interface:
		// any value
	case kindTypes[k] != "":
		schema["type"] = kindTypes[k]
		if k >= reflect.Uint && k <= reflect.Uint64 {
			schema["minimum"] = 0
		}
	default:
		schema["type"] = "string"
	}

	if d := tag.Get("description"); d != "" {
		schema["description"] = d
	}
	if e := tag.Get("enum"); e != "" {
		schema["enum"] = strings.Split(e, "|")
	}
	return schema
}

func objectSchema(t reflect.Type) map[string]interface{} {
	props := map[string]interface{}{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		switch {
		case !f.IsExported():
			continue
		case f.Anonymous && f.Type.Kind() == reflect.Struct:
			inner := objectSchema(f.Type)
			for k, v := range inner["properties"].(map[string]interface{}) {
				props[k] = v
			}
			if r, ok := inner["required"].([]string); ok {
				required = append(required, r...)
			}
			continue
		}

		name, optional, skip := jsonField(f)
		if skip {
			continue
		}
		props[name] = schemaFor(f.Type, f.Tag)
		if !optional {
			required = append(required, name)
		}
	}

	out := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// jsonField reads the json tag of f the way encoding/json does.
func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if o == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

// ExtractJSON returns the JSON object or array embedded in a model reply,
// dropping markdown fences and surrounding prose. Text without JSON is
// returned trimmed.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if i := strings.LastIndex(rest, "```"); i >= 0 {
			rest = rest[:i]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// ParseStructured decodes the JSON in content into a new value shaped like
// template and validates it. T may be a struct or a pointer to one. On a
// validation failure the decoded response is returned along with the error.
func ParseStructured[T Structured](content string, template T) (*StructuredResponse[T], error) {
	t := reflect.TypeOf(template)
	isPtr := t.Kind() == reflect.Ptr
	if isPtr {
		t = t.Elem()
	}

	raw := ExtractJSON(content)
	target := reflect.New(t)
	if err := json.Unmarshal([]byte(raw), target.Interface()); err != nil {
		return nil, fmt.Errorf("json parsing error: %w", err)
	}

	if !isPtr {
		target = target.Elem()
	}
	resp := &StructuredResponse[T]{
		Data:       target.Interface().(T),
		Validation: &ValidationResult{RawJSON: raw},
	}
	if err := resp.Data.Validate(); err != nil {
		resp.Validation.Errors = []string{err.Error()}
		return resp, fmt.Errorf("validation failed: %w", err)
	}
	resp.Validation.Valid = true
	return resp, nil
}
