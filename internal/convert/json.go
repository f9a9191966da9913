package convert

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/radarbase/restructure/internal/avrofile"
)

type jsonFactory struct{}

// NewJSONFactory returns the hierarchical Converter factory (C6). Unlike
// CSV it never pins a schema: writeRecord always succeeds.
func NewJSONFactory() Factory { return jsonFactory{} }

func (jsonFactory) Name() string      { return "json" }
func (jsonFactory) Extension() string { return ".json" }
func (jsonFactory) HasHeader() bool   { return false }

func (jsonFactory) NewConverter(w io.Writer, schema *avrofile.Schema, _ map[string]interface{}, _ bool, _ io.Reader) (Converter, error) {
	return &jsonConverter{w: w, enc: json.NewEncoder(w), schema: schema}, nil
}

type jsonConverter struct {
	w      io.Writer
	enc    *json.Encoder
	schema *avrofile.Schema
}

// WriteRecord resolves every union branch to its bare value, keeping the
// record's natural nesting (unlike CSV's dot-joined flattening), and
// writes one JSON document per line. Always succeeds.
func (c *jsonConverter) WriteRecord(record map[string]interface{}) (bool, error) {
	resolved := resolveForJSON(c.schema, record)
	if err := c.enc.Encode(resolved); err != nil {
		return false, fmt.Errorf("convert: json: encode record: %w", err)
	}
	return true, nil
}

func (c *jsonConverter) Flush() error { return nil }
func (c *jsonConverter) Close() error { return nil }

// resolveForJSON mirrors flattenValue's traversal but preserves hierarchy
// instead of dot-joining it: records become maps, arrays become slices,
// avro maps become maps with sorted keys, unions resolve to their bare
// branch value, and bytes/fixed are left as []byte (encoding/json base64s
// them automatically, matching CSV's own base64 rendering).
func resolveForJSON(schema *avrofile.Schema, value interface{}) interface{} {
	if schema == nil {
		return value
	}
	switch schema.Type {
	case "record":
		rec, ok := value.(map[string]interface{})
		if !ok {
			return value
		}
		out := make(map[string]interface{}, len(schema.Fields))
		for _, field := range schema.Fields {
			out[field.Name] = resolveForJSON(field.Type, rec[field.Name])
		}
		return out

	case "map":
		m, ok := value.(map[string]interface{})
		if !ok {
			return value
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(m))
		for _, k := range keys {
			out[k] = resolveForJSON(schema.Values, m[k])
		}
		return out

	case "array":
		list, ok := value.([]interface{})
		if !ok {
			return value
		}
		out := make([]interface{}, len(list))
		for i, elem := range list {
			out[i] = resolveForJSON(schema.Items, elem)
		}
		return out

	case "union":
		branch, inner := resolveUnion(schema, value)
		return resolveForJSON(branch, inner)

	case "enum", "string":
		return fmt.Sprintf("%v", value)

	default:
		return value
	}
}
