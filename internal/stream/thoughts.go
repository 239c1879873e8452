package stream

// ThoughtRecord is one reasoning step reported by the upstream agent. The
// same step is usually reported several times as it progresses.
type ThoughtRecord struct {
	ID          string `json:"id"`
	Thought     string `json:"thought"`
	Observation string `json:"observation"`
	Tool        string `json:"tool"`
	ToolInput   string `json:"tool_input"`
}

// merge folds a later report of the same step into r. A non-empty incoming
// field replaces the stored one; an empty incoming field never erases it.
func (r *ThoughtRecord) merge(in ThoughtRecord) {
	if in.Thought != "" {
		r.Thought = in.Thought
	}
	if in.Observation != "" {
		r.Observation = in.Observation
	}
	if in.Tool != "" {
		r.Tool = in.Tool
	}
	if in.ToolInput != "" {
		r.ToolInput = in.ToolInput
	}
}

// ThoughtSet holds at most one record per id, in order of first sighting.
type ThoughtSet struct {
	records []ThoughtRecord
	index   map[string]int
}

// Upsert inserts a new record or merges into the existing one with the same id.
func (s *ThoughtSet) Upsert(in ThoughtRecord) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[in.ID]; ok {
		s.records[i].merge(in)
		return
	}
	s.index[in.ID] = len(s.records)
	s.records = append(s.records, in)
}

// Records returns a copy of the records in arrival order.
func (s *ThoughtSet) Records() []ThoughtRecord {
	return append([]ThoughtRecord(nil), s.records...)
}

// Observations returns each record's observation in arrival order.
func (s *ThoughtSet) Observations() []string {
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Observation
	}
	return out
}

// Len returns the number of distinct records.
func (s *ThoughtSet) Len() int { return len(s.records) }
