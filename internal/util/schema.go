package util

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidationError reports the first tool argument that does not match the
// parameter schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from the exported fields of a struct.
//
// Field names come from the json tag, descriptions from a `description` tag
// and allowed values from a comma separated `enum` tag. Fields are required
// unless they are pointers or tagged omitempty. Non-struct values yield an
// empty object schema.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for i := range t.NumField() {
		f := t.Field(i)
		name, optional, skip := jsonField(f)
		if skip {
			continue
		}

		prop := propertyFor(f.Type)
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			prop["enum"] = strings.Split(e, ",")
		}
		properties[name] = prop

		if !optional && f.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	if !f.IsExported() {
		return "", false, true
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func propertyFor(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": propertyFor(t.Elem())}
	case reflect.Map, reflect.Struct:
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "string"}
	}
}

// ValidateParameters checks decoded tool arguments against an object schema:
// required fields must be present, known fields must match their declared
// type and enum. Unknown fields are ignored and nil matches any type.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range RequiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		prop, ok := properties[name].(map[string]any)
		if !ok || value == nil {
			continue
		}
		if msg := checkValue(value, prop); msg != "" {
			return &ValidationError{Field: name, Value: value, Message: msg}
		}
	}
	return nil
}

func checkValue(value any, prop map[string]any) string {
	typ, _ := prop["type"].(string)
	if !matchesType(value, typ) {
		return fmt.Sprintf("expected type %s, got %T", typ, value)
	}
	enum := stringList(prop["enum"])
	if len(enum) == 0 {
		return ""
	}
	s, _ := value.(string)
	for _, allowed := range enum {
		if s == allowed {
			return ""
		}
	}
	return fmt.Sprintf("must be one of [%s]", strings.Join(enum, ", "))
}

// RequiredFields returns the schema's required list. Both []string (Go
// literals) and []any (decoded JSON) are accepted.
func RequiredFields(schema map[string]any) []string {
	return stringList(schema["required"])
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		if f, ok := value.(float64); ok {
			// encoding/json decodes every number as float64
			return f == float64(int64(f))
		}
		return isInteger(value)
	case "number":
		switch value.(type) {
		case float32, float64:
			return true
		}
		return isInteger(value)
	case "array":
		k := reflect.ValueOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func isInteger(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
