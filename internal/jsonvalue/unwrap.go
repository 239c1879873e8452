package jsonvalue

// Unwrap repeatedly parses string values as JSON until it reaches a value
// that is not a string, or a string that does not parse. Non-string input is
// returned as is.
//
// Every successful parse of a string yields something strictly shorter than
// its source text, so the loop always terminates.
func Unwrap(v Value) Value {
	out, _ := UnwrapChanged(v)
	return out
}

// UnwrapChanged is Unwrap that also reports whether at least one parse
// succeeded, i.e. whether v was a JSON-encoded string.
func UnwrapChanged(v Value) (Value, bool) {
	cur := v
	changed := false
	for cur.kind == String {
		next, err := ParseString(cur.s)
		if err != nil {
			break
		}
		cur = next
		changed = true
	}
	return cur, changed
}

// ParseUnwrapped parses s and unwraps the result. The bool is false when s is
// not valid JSON.
func ParseUnwrapped(s string) (Value, bool) {
	v, err := ParseString(s)
	if err != nil {
		return Value{}, false
	}
	return Unwrap(v), true
}
