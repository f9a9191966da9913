package convert

import (
	"strings"
	"testing"

	"github.com/radarbase/restructure/internal/avrofile"
)

func sampleSchema() *avrofile.Schema {
	return &avrofile.Schema{
		Type: "record",
		Fields: []avrofile.Field{
			{Name: "a", Type: &avrofile.Schema{Type: "string"}},
		},
	}
}

func extendedSchema() *avrofile.Schema {
	return &avrofile.Schema{
		Type: "record",
		Fields: []avrofile.Field{
			{Name: "a", Type: &avrofile.Schema{Type: "string"}},
			{Name: "b", Type: &avrofile.Schema{Type: "string"}},
		},
	}
}

func TestCSVWritesHeaderAndRows(t *testing.T) {
	var buf strings.Builder
	factory := NewCSVFactory()
	schema := sampleSchema()

	conv, err := factory.NewConverter(&buf, schema, map[string]interface{}{"a": "something"}, true, nil)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}

	for _, v := range []string{"something", "somethingElse", "third"} {
		ok, err := conv.WriteRecord(map[string]interface{}{"a": v})
		if err != nil || !ok {
			t.Fatalf("WriteRecord(%q) = %v, %v", v, ok, err)
		}
	}
	if err := conv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "a\nsomething\nsomethingElse\nthird\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestCSVRejectsSchemaMismatch(t *testing.T) {
	var buf strings.Builder
	factory := NewCSVFactory()

	// Pin the converter to the 2-column schema, then flatten a record that
	// only has 1 of those columns populated under the 1-column schema: the
	// column count differs from the pin, so the write must be rejected.
	conv, err := factory.NewConverter(&buf, extendedSchema(), map[string]interface{}{"a": "f1", "b": "conflict"}, true, nil)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}

	convMismatched := &csvConverter{writer: conv.(*csvConverter).writer, columns: conv.(*csvConverter).columns, schema: sampleSchema()}
	ok, err := convMismatched.WriteRecord(map[string]interface{}{"a": "x"})
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if ok {
		t.Error("expected mismatched column count to return false")
	}
}

func TestCSVBytesAreBase64Encoded(t *testing.T) {
	var buf strings.Builder
	factory := NewCSVFactory()
	schema := &avrofile.Schema{
		Type: "record",
		Fields: []avrofile.Field{
			{Name: "raw", Type: &avrofile.Schema{Type: "bytes"}},
		},
	}
	conv, err := factory.NewConverter(&buf, schema, map[string]interface{}{"raw": []byte("hi")}, true, nil)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, err := conv.WriteRecord(map[string]interface{}{"raw": []byte("hi")}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	conv.Close()

	if !strings.Contains(buf.String(), "aGk=") {
		t.Errorf("expected base64 of 'hi' in output, got %q", buf.String())
	}
}

func TestCSVAppendReadsExistingHeader(t *testing.T) {
	existing := strings.NewReader("a,b\n")
	factory := NewCSVFactory()
	var buf strings.Builder
	conv, err := factory.NewConverter(&buf, extendedSchema(), nil, false, existing)
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	ok, err := conv.WriteRecord(map[string]interface{}{"a": "x", "b": "y"})
	if err != nil || !ok {
		t.Fatalf("WriteRecord = %v, %v", ok, err)
	}
}
