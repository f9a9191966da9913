package convert

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/radarbase/restructure/internal/avrofile"
)

func TestJSONConverterAlwaysSucceeds(t *testing.T) {
	var buf strings.Builder
	factory := NewJSONFactory()
	schema := sampleSchema()

	conv, err := factory.NewConverter(&buf, schema, nil, true, nil)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}

	ok, err := conv.WriteRecord(map[string]interface{}{"a": "x"})
	if err != nil || !ok {
		t.Fatalf("WriteRecord = %v, %v", ok, err)
	}
	ok, err = conv.WriteRecord(map[string]interface{}{"a": "x", "unexpected": "extra"})
	if err != nil || !ok {
		t.Fatalf("expected json writer to accept any shape, got %v, %v", ok, err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d: %q", len(lines), buf.String())
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded["a"] != "x" {
		t.Errorf("expected a=x, got %+v", decoded)
	}
}

func TestResolveForJSONUnwrapsUnion(t *testing.T) {
	schema := &avrofile.Schema{
		Type: "union",
		Union: []avrofile.Schema{
			{Type: "null"},
			{Type: "string"},
		},
	}
	got := resolveForJSON(schema, map[string]interface{}{"string": "hello"})
	if got != "hello" {
		t.Errorf("expected unwrapped string, got %#v", got)
	}
}
