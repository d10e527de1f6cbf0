// Package configschema derives a JSON Schema for the connector configuration
// file from the config structs, with defaults taken from config.DefaultConfig.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nimburion/couchconnector/pkg/config"
)

// DraftURI is the JSON Schema dialect of generated schemas.
const DraftURI = "https://json-schema.org/draft/2020-12/schema"

var durationType = reflect.TypeOf(time.Duration(0))

// BuildSchema returns the schema of config.Config. Property names follow the
// mapstructure keys accepted in configuration files.
func BuildSchema() (*jsonschema.Schema, error) {
	return BuildSchemaWithDefaults(config.DefaultConfig())
}

// BuildSchemaWithDefaults is BuildSchema with explicit default values.
func BuildSchemaWithDefaults(defaults *config.Config) (*jsonschema.Schema, error) {
	if defaults == nil {
		defaults = config.DefaultConfig()
	}
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			durationType: {Type: "string"},
		},
	}

	t := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(t, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	renameProperties(schema, t)
	injectDefaults(schema, reflect.ValueOf(defaults))
	pruneRequired(schema)

	if db := schema.Properties["database"]; db != nil {
		if typ := db.Properties["type"]; typ != nil {
			typ.Enum = []any{config.DatabaseTypeCouchDB, config.DatabaseTypeMemory}
		}
	}

	name := strings.TrimSpace(defaults.Service.Name)
	if name == "" {
		name = "couchconnector"
	}
	schema.Schema = DraftURI
	schema.Title = name + " Configuration"
	schema.Description = "Schema for " + name + " configuration files."
	return schema, nil
}

// renameProperties swaps the Go field names produced by the reflector for
// the mapstructure keys.
func renameProperties(schema *jsonschema.Schema, t reflect.Type) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if schema == nil || t.Kind() != reflect.Struct || len(schema.Properties) == 0 {
		return
	}

	names := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := fieldKey(field)
		names[field.Name] = key
		if prop, ok := schema.Properties[field.Name]; ok {
			delete(schema.Properties, field.Name)
			schema.Properties[key] = prop
			renameProperties(prop, field.Type)
		}
	}
	for i, name := range schema.Required {
		if key, ok := names[name]; ok {
			schema.Required[i] = key
		}
	}
	for i, name := range schema.PropertyOrder {
		if key, ok := names[name]; ok {
			schema.PropertyOrder[i] = key
		}
	}
}

func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}
	if schema == nil || value.Kind() != reflect.Struct {
		return
	}

	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		prop := schema.Properties[fieldKey(field)]
		if prop == nil {
			continue
		}
		fv := value.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != durationType {
			injectDefaults(prop, fv)
			continue
		}
		if raw, ok := marshalDefault(fv); ok {
			prop.Default = raw
		}
	}
}

func marshalDefault(value reflect.Value) (json.RawMessage, bool) {
	if value.Kind() == reflect.Map && value.IsNil() {
		return nil, false
	}
	v := value.Interface()
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// pruneRequired clears required lists: every key may be omitted from a
// configuration file and falls back to its default.
func pruneRequired(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	schema.Required = nil
	for _, prop := range schema.Properties {
		pruneRequired(prop)
	}
}

func fieldKey(field reflect.StructField) string {
	for _, tag := range []string{"mapstructure", "yaml"} {
		if name, _, _ := strings.Cut(field.Tag.Get(tag), ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}
