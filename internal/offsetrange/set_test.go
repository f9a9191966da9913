package offsetrange

import (
	"strings"
	"testing"
)

func tp() TopicPartition { return TopicPartition{Topic: "a", Partition: 0} }

func TestAddMergesAdjacentAndOverlapping(t *testing.T) {
	s := NewSet()
	s.Add(tp(), Range{From: 0, To: 1})
	s.Add(tp(), Range{From: 1, To: 2})
	s.Add(tp(), Range{From: 4, To: 4})

	ranges := s.Ranges(tp())
	if len(ranges) != 2 {
		t.Fatalf("expected 2 canonical ranges, got %d: %+v", len(ranges), ranges)
	}
	if ranges[0].From != 0 || ranges[0].To != 2 {
		t.Errorf("expected [0,2], got %+v", ranges[0])
	}
	if ranges[1].From != 4 || ranges[1].To != 4 {
		t.Errorf("expected [4,4], got %+v", ranges[1])
	}
}

func TestAddIsOrderIndependent(t *testing.T) {
	inputs := []Range{{From: 10, To: 12}, {From: 0, To: 1}, {From: 2, To: 2}, {From: 20, To: 25}}

	forward := NewSet()
	for _, r := range inputs {
		forward.Add(tp(), r)
	}

	backward := NewSet()
	for i := len(inputs) - 1; i >= 0; i-- {
		backward.Add(tp(), inputs[i])
	}

	fr, br := forward.Ranges(tp()), backward.Ranges(tp())
	if len(fr) != len(br) {
		t.Fatalf("different canonical shapes: %+v vs %+v", fr, br)
	}
	for i := range fr {
		if fr[i].From != br[i].From || fr[i].To != br[i].To {
			t.Errorf("range %d differs: %+v vs %+v", i, fr[i], br[i])
		}
	}
}

func TestContains(t *testing.T) {
	s := NewSet()
	s.Add(tp(), Range{From: 5, To: 10})

	if !s.Contains(tp(), Range{From: 6, To: 8}) {
		t.Error("expected subset range to be contained")
	}
	if s.Contains(tp(), Range{From: 4, To: 8}) {
		t.Error("expected range extending below stored range to not be contained")
	}
	if s.Contains(tp(), Range{From: 6, To: 11}) {
		t.Error("expected range extending above stored range to not be contained")
	}
}

func TestStrictlySortedNonAdjacent(t *testing.T) {
	s := NewSet()
	for _, r := range []Range{{From: 0, To: 1}, {From: 5, To: 6}, {From: 10, To: 11}} {
		s.Add(tp(), r)
	}
	ranges := s.Ranges(tp())
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].To+1 >= ranges[i].From {
			t.Errorf("ranges %d and %d are adjacent or overlapping: %+v %+v", i-1, i, ranges[i-1], ranges[i])
		}
		if ranges[i-1].From >= ranges[i].From {
			t.Errorf("ranges not strictly sorted at %d", i)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	s := NewSet()
	s.Add(TopicPartition{Topic: "a", Partition: 0}, Range{From: 0, To: 1})
	s.Add(TopicPartition{Topic: "a", Partition: 0}, Range{From: 1, To: 2})
	s.Add(TopicPartition{Topic: "a", Partition: 0}, Range{From: 4, To: 4})

	var buf strings.Builder
	if err := WriteCSV(&buf, s); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), buf.String())
	}

	loaded, err := ReadCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	want := s.Ranges(tp())
	got := loaded.Ranges(tp())
	if len(want) != len(got) {
		t.Fatalf("round trip shape mismatch: %+v vs %+v", want, got)
	}
	for i := range want {
		if want[i].From != got[i].From || want[i].To != got[i].To {
			t.Errorf("range %d mismatch: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestParseFilename(t *testing.T) {
	f, err := ParseFilename("a+0+0+1.avro")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if f.Topic != "a" || f.Range.From != 0 || f.Range.To != 1 {
		t.Errorf("unexpected parse result: %+v", f)
	}
	if f.Size() != 2 {
		t.Errorf("expected size 2, got %d", f.Size())
	}

	if _, err := ParseFilename("not-a-valid-name"); err == nil {
		t.Error("expected error for unparseable filename")
	}
}
