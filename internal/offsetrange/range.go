// Package offsetrange implements the in-memory interval set that tracks
// which (topic, partition) offsets have already been processed.
package offsetrange

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TopicPartition identifies a parallel shard of a topic.
type TopicPartition struct {
	Topic     string
	Partition int
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s+%d", tp.Topic, tp.Partition)
}

// Range is a closed interval [From, To] of offsets within a TopicPartition,
// plus the wall-clock time it was last touched. Value type: callers build a
// new Range rather than mutating one in place.
type Range struct {
	From          int64
	To            int64
	LastProcessed time.Time
}

// filenamePattern splits a container file name of the form
// topic+partition+offsetFrom+offsetTo.ext. The name is split at every
// single '+' or '.', so topic names may not themselves contain those
// characters.
var filenamePattern = regexp.MustCompile(`[+.]`)

// TopicFile is a source container file together with its parsed offset range.
type TopicFile struct {
	Topic     string
	Partition int
	Path      string
	Range     Range
}

// Size returns the number of offsets spanned by the file, inclusive.
func (f TopicFile) Size() int64 {
	return f.Range.To - f.Range.From + 1
}

// ParseFilename parses "topic+partition+offsetFrom+offsetTo.ext" (base name
// only, directory components must already be stripped). Returns an error if
// the name does not split into exactly five segments or the numeric fields
// do not parse.
func ParseFilename(name string) (TopicFile, error) {
	parts := filenamePattern.Split(name, -1)
	if len(parts) != 5 {
		return TopicFile{}, fmt.Errorf("offsetrange: cannot parse filename %q: expected topic+partition+from+to.ext", name)
	}
	partition, err := strconv.Atoi(parts[1])
	if err != nil {
		return TopicFile{}, fmt.Errorf("offsetrange: invalid partition in %q: %w", name, err)
	}
	from, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TopicFile{}, fmt.Errorf("offsetrange: invalid offsetFrom in %q: %w", name, err)
	}
	to, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return TopicFile{}, fmt.Errorf("offsetrange: invalid offsetTo in %q: %w", name, err)
	}
	if from > to {
		return TopicFile{}, fmt.Errorf("offsetrange: invalid range in %q: from %d > to %d", name, from, to)
	}
	return TopicFile{
		Topic:     parts[0],
		Partition: partition,
		Range:     Range{From: from, To: to},
	}, nil
}

// TopicFileList is an ordered list of TopicFile plus its cumulative offset
// count, used to sort topics by size (largest first) before dispatch.
type TopicFileList struct {
	Topic string
	Files []TopicFile
}

// NumberOfFiles returns the number of files in the list.
func (l TopicFileList) NumberOfFiles() int {
	return len(l.Files)
}

// NumberOfOffsets returns the sum of each file's Size().
func (l TopicFileList) NumberOfOffsets() int64 {
	var total int64
	for _, f := range l.Files {
		total += f.Size()
	}
	return total
}
