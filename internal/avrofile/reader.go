// Package avrofile reads Avro Object Container Files record by record,
// wrapping github.com/linkedin/goavro/v2's OCFReader behind the narrow
// streaming contract the Restructure Worker needs.
package avrofile

import (
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"
)

// Reader streams records out of one Avro OCF. Records come back as
// map[string]interface{} (goavro's native decoding of an Avro record);
// union branches are represented as single-key maps {"branch.type": value},
// matching goavro's convention, which the Record Converter's flattener
// understands natively (see internal/convert).
type Reader struct {
	ocf    *goavro.OCFReader
	err    error
	schema *Schema
}

// NewReader opens r as an Avro Object Container File. r must start at the
// file's OCF header (callers read the whole file, not a byte range).
func NewReader(r io.Reader) (*Reader, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("avrofile: open OCF: %w", err)
	}
	return &Reader{ocf: ocf}, nil
}

// Scan advances to the next record, returning false at EOF or on error.
// Call Err after Scan returns false to distinguish the two.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	return r.ocf.Scan()
}

// Record decodes the current record. Must only be called after Scan
// returns true.
func (r *Reader) Record() (map[string]interface{}, error) {
	datum, err := r.ocf.Read()
	if err != nil {
		r.err = err
		return nil, fmt.Errorf("avrofile: decode record: %w", err)
	}
	rec, ok := datum.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("avrofile: unexpected record shape %T, want a record (map)", datum)
	}
	return rec, nil
}

// Err returns the first error encountered by Scan/Record, if any.
func (r *Reader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.ocf.Err()
}

// RawSchema returns the writer schema's original JSON text, used to emit
// schema.json verbatim alongside the first successful write to a project/
// user/topic directory.
func (r *Reader) RawSchema() (string, error) {
	codec := r.ocf.Codec()
	if codec == nil {
		return "", fmt.Errorf("avrofile: no codec available (file may be empty)")
	}
	return codec.Schema(), nil
}

// Schema returns the writer schema's parsed field-order tree, used by the
// Record Converter to flatten records in declaration order. Parsed once
// and cached.
func (r *Reader) Schema() (*Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	codec := r.ocf.Codec()
	if codec == nil {
		return nil, fmt.Errorf("avrofile: no codec available (file may be empty)")
	}
	schema, err := ParseSchema(codec.Schema())
	if err != nil {
		return nil, err
	}
	r.schema = schema
	return schema, nil
}
