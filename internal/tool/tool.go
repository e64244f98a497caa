// Package tool provides internal utilities for tool schema generation.
package tool

import (
	"reflect"
	"strings"

	"github.com/nibaldox/chat-llm-terminal/tool"
)

// GenerateJSONSchema generates a basic JSON schema from a reflect.Type.
// It handles structs, maps, slices and scalar kinds; pointer types are
// unwrapped and marked optional.
func GenerateJSONSchema(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: tool.TypeObject}
	}
	return generate(t)
}

func generate(t reflect.Type) *tool.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return generateStruct(t)
	case reflect.Map:
		return &tool.Schema{Type: tool.TypeObject}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{
			Type:  tool.TypeArray,
			Items: generate(t.Elem()),
		}
	case reflect.String:
		return &tool.Schema{Type: tool.TypeString}
	case reflect.Bool:
		return &tool.Schema{Type: tool.TypeBoolean}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: tool.TypeInteger}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: tool.TypeNumber}
	default:
		// Interfaces and anything else degrade to an untyped node.
		return &tool.Schema{}
	}
}

func generateStruct(t reflect.Type) *tool.Schema {
	schema := &tool.Schema{
		Type:       tool.TypeObject,
		Properties: make(map[string]*tool.Schema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, optional := fieldName(field)
		if name == "" {
			continue
		}

		prop := generate(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}
		schema.Properties[name] = prop

		if !optional && field.Type.Kind() != reflect.Pointer {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// fieldName resolves the property name for a struct field from its json
// tag, falling back to the Go field name. The second return reports
// whether the field is optional (json:",omitempty").
func fieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name, false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = field.Name
	}
	optional := false
	for _, p := range parts[1:] {
		if p == "omitempty" {
			optional = true
		}
	}
	return name, optional
}
