// Package convert flattens decoded Avro records into rows, in either a
// tabular (CSV, dot-joined column names) or hierarchical (JSON-Lines) shape
// (C6).
package convert

import (
	"fmt"
	"sort"

	"github.com/radarbase/restructure/internal/avrofile"
)

// Column is one flattened (dotted-path, value) pair, in schema declaration
// order.
type Column struct {
	Name  string
	Value interface{}
}

// Flatten walks schema alongside record and returns its columns in
// declaration order: nested records are dot-joined (a.b.c), arrays use
// their index (a.0, a.1), maps use their key, and unions resolve to their
// active branch with no added path segment. Bytes/fixed values are kept as
// raw []byte; enum/string values become Go strings; remaining primitives
// pass through unchanged.
func Flatten(schema *avrofile.Schema, record map[string]interface{}) ([]Column, error) {
	var out []Column
	if err := flattenRecord(schema, record, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenRecord(schema *avrofile.Schema, record map[string]interface{}, prefix string, out *[]Column) error {
	for _, field := range schema.Fields {
		name := field.Name
		if prefix != "" {
			name = prefix + "." + field.Name
		}
		if err := flattenValue(record[field.Name], field.Type, name, out); err != nil {
			return err
		}
	}
	return nil
}

func flattenValue(value interface{}, schema *avrofile.Schema, path string, out *[]Column) error {
	if schema == nil {
		*out = append(*out, Column{Name: path, Value: value})
		return nil
	}

	switch schema.Type {
	case "record":
		rec, ok := value.(map[string]interface{})
		if !ok {
			if value == nil {
				return nil
			}
			return fmt.Errorf("convert: expected record at %s, got %T", path, value)
		}
		return flattenRecord(schema, rec, path, out)

	case "map":
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flattenValue(m[k], schema.Values, path+"."+k, out); err != nil {
				return err
			}
		}
		return nil

	case "array":
		list, ok := value.([]interface{})
		if !ok {
			return nil
		}
		for i, elem := range list {
			if err := flattenValue(elem, schema.Items, fmt.Sprintf("%s.%d", path, i), out); err != nil {
				return err
			}
		}
		return nil

	case "union":
		branch, inner := resolveUnion(schema, value)
		return flattenValue(inner, branch, path, out)

	case "bytes", "fixed":
		b, _ := value.([]byte)
		*out = append(*out, Column{Name: path, Value: b})
		return nil

	case "enum", "string":
		*out = append(*out, Column{Name: path, Value: fmt.Sprintf("%v", value)})
		return nil

	default: // int, long, float, double, boolean, null
		*out = append(*out, Column{Name: path, Value: value})
		return nil
	}
}

// resolveUnion unwraps goavro's union encoding: nil for a null branch, or a
// single-key map {"branchName": value} for a non-null branch. It returns
// the matching member schema (nil for null) and the bare inner value.
func resolveUnion(schema *avrofile.Schema, value interface{}) (*avrofile.Schema, interface{}) {
	if value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]interface{})
	if !ok || len(m) != 1 {
		// goavro can return the bare value directly for a ["null", T] union;
		// find the first non-null member to interpret it as.
		for _, member := range schema.Union {
			if member.Type != "null" {
				return &member, value
			}
		}
		return nil, value
	}
	for branch, inner := range m {
		for _, member := range schema.Union {
			if member.Type == branch || member.Name == branch {
				return &member, inner
			}
		}
		return nil, inner
	}
	return nil, value
}
