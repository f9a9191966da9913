package convert

import (
	"io"

	"github.com/radarbase/restructure/internal/avrofile"
)

// Converter writes one decoded record at a time to an underlying stream.
// WriteRecord returns false (not an error) when the record's shape is
// incompatible with whatever schema/header this converter pinned on
// construction; the caller (the Restructure Worker) is expected to retry
// under a suffixed sidecar path rather than treat false as fatal.
type Converter interface {
	WriteRecord(record map[string]interface{}) (bool, error)
	// Flush must be safe to call with no pending write.
	Flush() error
	// Close flushes then releases the underlying writer. It does not close
	// the wrapped io.Writer itself — that is the File Cache's job.
	Close() error
}

// Factory builds Converters for one output format.
type Factory interface {
	// Name is the short registry key ("csv", "json").
	Name() string
	// Extension is the bare file extension, including the leading dot.
	Extension() string
	// HasHeader reports whether this format pins a header/schema on first
	// write (true for csv, false for json).
	HasHeader() bool
	// NewConverter opens a converter over w. sampleRecord/sampleSchema seed
	// the pinned column set when writeHeader is true; when writeHeader is
	// false (appending to an existing, non-empty file) existingHeader, if
	// non-nil, is read to recover the prior pin instead.
	NewConverter(w io.Writer, sampleSchema *avrofile.Schema, sampleRecord map[string]interface{}, writeHeader bool, existingHeader io.Reader) (Converter, error)
}

// Registry maps short format names to their Factory, matching the
// plugin-dispatch redesign in the spec's design notes (§9): implementations
// register by name rather than by fully-qualified symbol.
var registry = map[string]Factory{}

// Register adds f to the registry under f.Name(). Custom backends call
// this before Load.
func Register(f Factory) {
	registry[f.Name()] = f
}

// Lookup returns the registered Factory for name, or false if none.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

func init() {
	Register(NewCSVFactory())
	Register(NewJSONFactory())
}
