// Package pathfactory computes the output path, category, and record
// instant for a record's key/value pair (C5). Construction-time options
// select the extension (converter + compression) and the time-bin format.
package pathfactory

import (
	"fmt"
	"regexp"
	"time"
)

// TimeBinFormat selects the granularity of the leaf filename.
type TimeBinFormat int

const (
	// Hourly formats as yyyyMMdd_HH00 (the default).
	Hourly TimeBinFormat = iota
	// Monthly formats as yyyyMM.
	Monthly
)

// Organization is the result of routing one record: its output-relative
// path, a category label, and the record's resolved instant (nil when
// neither a time nor start field was present).
type Organization struct {
	Path     string
	Category string
	Time     *time.Time
	TimeBin  string
}

// Factory assembles relative output paths from a record's key/value pair.
type Factory struct {
	TimeBinFormat  TimeBinFormat
	Extension      string // e.g. ".csv", ".json"
	CompressionExt string // e.g. "", ".gz", ".zip"
}

var nonIdentifierRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sanitizeID strips every run of characters outside [A-Za-z0-9_-]; a nil,
// missing, or empty-after-sanitizing value falls back to def.
func sanitizeID(v interface{}, def string) string {
	s, ok := asString(v)
	if !ok || s == "" {
		return def
	}
	cleaned := nonIdentifierRun.ReplaceAllString(s, "")
	if cleaned == "" {
		return def
	}
	return cleaned
}

func asString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// recordTime resolves the instant for a record per §4.5: prefer the
// value's "time" field (floating-point seconds since epoch, millisecond
// precision after rounding), else the key's "start" field (integer
// milliseconds, used for windowed aggregates), else nil.
func recordTime(key, value map[string]interface{}) *time.Time {
	if t, ok := floatField(value, "time"); ok {
		instant := time.UnixMilli(int64(t*1000 + 0.5)).UTC()
		return &instant
	}
	if ms, ok := intField(key, "start"); ok {
		instant := time.UnixMilli(ms).UTC()
		return &instant
	}
	return nil
}

func floatField(m map[string]interface{}, name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	v = unwrapUnion(v)
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	return 0, false
}

func intField(m map[string]interface{}, name string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return 0, false
	}
	v = unwrapUnion(v)
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	}
	return 0, false
}

// unwrapUnion handles goavro's convention of representing a resolved union
// branch as a single-key map {"branch.type.name": value}.
func unwrapUnion(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok && len(m) == 1 {
		for _, inner := range m {
			return inner
		}
	}
	return v
}

const unknownDate = "unknown_date"

func timeBin(t *time.Time, format TimeBinFormat) string {
	if t == nil {
		return unknownDate
	}
	u := t.UTC()
	switch format {
	case Monthly:
		return fmt.Sprintf("%04d%02d", u.Year(), int(u.Month()))
	default:
		return fmt.Sprintf("%04d%02d%02d_%02d00", u.Year(), int(u.Month()), u.Day(), u.Hour())
	}
}

// Organize computes the relative output path for one record. attempt 0
// yields an unsuffixed path; attempt>0 appends "_<attempt>" before the
// extension, used by the Restructure Worker to retry under a sidecar file
// when the pinned schema at the unsuffixed path does not match.
func (f *Factory) Organize(topic string, key, value map[string]interface{}, attempt int) Organization {
	t := recordTime(key, value)
	bin := timeBin(t, f.TimeBinFormat)

	projectID := sanitizeID(fieldOf(key, "projectId"), "unknown-project")
	userID := sanitizeID(fieldOf(key, "userId"), "unknown-user")
	category := sanitizeID(fieldOf(key, "sourceId"), "unknown-source")

	suffix := ""
	if attempt > 0 {
		suffix = fmt.Sprintf("_%d", attempt)
	}

	path := fmt.Sprintf("%s/%s/%s/%s%s%s%s", projectID, userID, topic, bin, suffix, f.Extension, f.CompressionExt)

	return Organization{Path: path, Category: category, Time: t, TimeBin: bin}
}

func fieldOf(m map[string]interface{}, name string) interface{} {
	if m == nil {
		return nil
	}
	return unwrapUnion(m[name])
}
