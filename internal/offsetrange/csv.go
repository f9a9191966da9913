package offsetrange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvHeader is the header row written to every per-topic offsets file.
var csvHeader = []string{"offsetFrom", "offsetTo", "topic", "partition"}

// WriteCSV serializes every range of every partition in s to w as
// "offsetFrom,offsetTo,topic,partition" rows with a header. Ranges are
// already canonical, so round-tripping through WriteCSV/ReadCSV is
// lossless up to LastProcessed (which is not persisted, matching the
// original file format).
func WriteCSV(w io.Writer, s *Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("offsetrange: write header: %w", err)
	}
	for _, tp := range s.Partitions() {
		for _, r := range s.Ranges(tp) {
			row := []string{
				strconv.FormatInt(r.From, 10),
				strconv.FormatInt(r.To, 10),
				tp.Topic,
				strconv.Itoa(tp.Partition),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("offsetrange: write row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV (or, for migration purposes, a
// legacy file with the same four columns) back into a Set. Every row is
// fed through Add so overlapping or adjacent legacy ranges self-heal into
// canonical form. A missing or malformed header is tolerated as long as
// every data row has exactly four columns; unparseable rows are skipped
// (the caller is expected to log a warning per the "offset store read
// failure" policy).
func ReadCSV(r io.Reader) (*Set, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	set := NewSet()

	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("offsetrange: read csv: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		if len(row) != 4 {
			continue
		}
		from, err1 := strconv.ParseInt(row[0], 10, 64)
		to, err2 := strconv.ParseInt(row[1], 10, 64)
		partition, err3 := strconv.Atoi(row[3])
		if err1 != nil || err2 != nil || err3 != nil || from > to {
			continue
		}
		tp := TopicPartition{Topic: row[2], Partition: partition}
		set.Add(tp, Range{From: from, To: to, LastProcessed: time.Time{}})
	}
	return set, nil
}
