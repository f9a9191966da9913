package convert

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/radarbase/restructure/internal/avrofile"
)

type csvFactory struct{}

// NewCSVFactory returns the tabular Converter factory (C6).
func NewCSVFactory() Factory { return csvFactory{} }

func (csvFactory) Name() string      { return "csv" }
func (csvFactory) Extension() string { return ".csv" }
func (csvFactory) HasHeader() bool   { return true }

func (csvFactory) NewConverter(w io.Writer, schema *avrofile.Schema, sample map[string]interface{}, writeHeader bool, existingHeader io.Reader) (Converter, error) {
	var columns []string

	if writeHeader {
		cols, err := Flatten(schema, sample)
		if err != nil {
			return nil, fmt.Errorf("convert: csv: flatten sample record: %w", err)
		}
		for _, c := range cols {
			columns = append(columns, c.Name)
		}
	} else {
		if existingHeader == nil {
			return nil, fmt.Errorf("convert: csv: appending requires an existing header reader")
		}
		hr := csv.NewReader(existingHeader)
		row, err := hr.Read()
		if err != nil {
			return nil, fmt.Errorf("convert: csv: read existing header: %w", err)
		}
		columns = row
	}

	cw := csv.NewWriter(w)
	conv := &csvConverter{writer: cw, columns: columns, schema: schema}
	if writeHeader {
		if err := cw.Write(columns); err != nil {
			return nil, fmt.Errorf("convert: csv: write header: %w", err)
		}
	}
	return conv, nil
}

type csvConverter struct {
	writer  *csv.Writer
	columns []string
	schema  *avrofile.Schema
}

// WriteRecord flattens record and compares its column set, in iteration
// order, against the pinned columns: any difference in length, name, or
// order returns (false, nil) without writing anything (§4.6).
func (c *csvConverter) WriteRecord(record map[string]interface{}) (bool, error) {
	cols, err := Flatten(c.schema, record)
	if err != nil {
		return false, fmt.Errorf("convert: csv: flatten record: %w", err)
	}
	if len(cols) != len(c.columns) {
		return false, nil
	}
	row := make([]string, len(cols))
	for i, col := range cols {
		if col.Name != c.columns[i] {
			return false, nil
		}
		row[i] = stringify(col.Value)
	}
	if err := c.writer.Write(row); err != nil {
		return false, fmt.Errorf("convert: csv: write row: %w", err)
	}
	return true, nil
}

func (c *csvConverter) Flush() error {
	c.writer.Flush()
	return c.writer.Error()
}

func (c *csvConverter) Close() error {
	return c.Flush()
}

// stringify renders a flattened column value the way the original Jackson
// CSV generator does: raw bytes become base64 (Jackson's default byte[]
// serialization), everything else is its natural string form.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
