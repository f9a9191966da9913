package avrofile

import (
	"encoding/json"
	"fmt"
)

// Schema is a minimal parse of an Avro schema JSON document, preserving the
// declaration order of record fields — order a decoded Go map cannot give
// back, since map iteration order is randomized. The Record Converter's
// flattener walks a Schema alongside the decoded record instead of relying
// on the record's own map order.
type Schema struct {
	Type   string   // "record", "array", "map", "union", "enum", or a primitive name
	Name   string   // record/enum name, if any
	Fields []Field  // record fields, in declaration order
	Items  *Schema  // array element type
	Values *Schema  // map value type
	Union  []Schema // union branch types, in declaration order
}

// Field is one record field declaration, in schema order.
type Field struct {
	Name string
	Type *Schema
}

// ParseSchema parses an Avro schema JSON document (as returned by the OCF
// codec) into a Schema tree.
func ParseSchema(raw string) (*Schema, error) {
	var node jsonNode
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("avrofile: parse schema: %w", err)
	}
	return node.toSchema()
}

// jsonNode accepts any of the three shapes an Avro type declaration can
// take: a bare name (JSON string), a union (JSON array), or a full
// declaration (JSON object).
type jsonNode struct {
	name   string
	union  []jsonNode
	object *jsonObject
}

type jsonObject struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Fields []struct {
		Name string   `json:"name"`
		Type jsonNode `json:"type"`
	} `json:"fields"`
	Items  *jsonNode `json:"items"`
	Values *jsonNode `json:"values"`
}

func (n *jsonNode) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		n.name = asString
		return nil
	}
	var asArray []jsonNode
	if err := json.Unmarshal(b, &asArray); err == nil {
		n.union = asArray
		return nil
	}
	var obj jsonObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("avrofile: unrecognized schema node: %w", err)
	}
	n.object = &obj
	return nil
}

func (n jsonNode) toSchema() (*Schema, error) {
	switch {
	case n.union != nil:
		s := &Schema{Type: "union"}
		for _, member := range n.union {
			sub, err := member.toSchema()
			if err != nil {
				return nil, err
			}
			s.Union = append(s.Union, *sub)
		}
		return s, nil
	case n.object != nil:
		s := &Schema{Type: n.object.Type, Name: n.object.Name}
		for _, f := range n.object.Fields {
			sub, err := f.Type.toSchema()
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, Field{Name: f.Name, Type: sub})
		}
		if n.object.Items != nil {
			sub, err := n.object.Items.toSchema()
			if err != nil {
				return nil, err
			}
			s.Items = sub
		}
		if n.object.Values != nil {
			sub, err := n.object.Values.toSchema()
			if err != nil {
				return nil, err
			}
			s.Values = sub
		}
		return s, nil
	default:
		return &Schema{Type: n.name}, nil
	}
}

// FieldByName returns the field declaration named name, if present.
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
