package stream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestThoughtSet_MergeKeepsNonEmptyFields(t *testing.T) {
	var s ThoughtSet
	s.Upsert(ThoughtRecord{ID: "a", Observation: `{"slots":[]}`, Tool: "calendar"})
	s.Upsert(ThoughtRecord{ID: "a", Thought: "checking availability"})

	want := []ThoughtRecord{{
		ID:          "a",
		Thought:     "checking availability",
		Observation: `{"slots":[]}`,
		Tool:        "calendar",
	}}
	if diff := cmp.Diff(want, s.Records()); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestThoughtSet_LaterNonEmptyReplaces(t *testing.T) {
	var s ThoughtSet
	s.Upsert(ThoughtRecord{ID: "a", Observation: "partial"})
	s.Upsert(ThoughtRecord{ID: "a", Observation: "complete"})

	if got := s.Observations(); !cmp.Equal(got, []string{"complete"}) {
		t.Errorf("Observations() = %v", got)
	}
}

func TestThoughtSet_ArrivalOrder(t *testing.T) {
	var s ThoughtSet
	s.Upsert(ThoughtRecord{ID: "b", Observation: "1"})
	s.Upsert(ThoughtRecord{ID: "a", Observation: "2"})
	s.Upsert(ThoughtRecord{ID: "b", Observation: "3"})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got := s.Observations(); !cmp.Equal(got, []string{"3", "2"}) {
		t.Errorf("Observations() = %v, want [3 2]", got)
	}
}

func TestThoughtSet_RecordsIsCopy(t *testing.T) {
	var s ThoughtSet
	s.Upsert(ThoughtRecord{ID: "a", Thought: "x"})

	recs := s.Records()
	recs[0].Thought = "mutated"

	if s.Records()[0].Thought != "x" {
		t.Error("Records() exposed internal state")
	}
}
