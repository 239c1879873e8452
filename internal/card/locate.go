package card

import "github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"

// Container keys searched for each list shape.
var (
	slotKeys    = []string{"available_slots", "slots"}
	processKeys = []string{"steps", "company"}
	serviceKeys = []string{"services"}
	aboutKeys   = []string{"about", "company", "about_company", "company_info"}
)

// Match is a located list together with the object that held it, if any.
// Owner is null when the value matched at the top level.
type Match struct {
	Items jsonvalue.Value
	Owner jsonvalue.Value
}

// Locate searches v depth-first for a value accepted by check. Candidates are
// tried in this order, stopping at the first hit:
//
//  1. v itself
//  2. for arrays, each element's fields named in keys
//  3. for objects, the fields named in keys
//  4. the object's "result" field
//  5. the object's "message.text" field
//  6. every other field that holds JSON-encoded text
//
// Fields are JSON-unwrapped before they are tested. The input is decoded
// JSON, so there are no cycles to guard against.
func Locate(v jsonvalue.Value, check Classifier, keys []string) (Match, bool) {
	if check(v) {
		return Match{Items: v}, true
	}

	switch v.Kind() {
	case jsonvalue.Array:
		for _, item := range v.Items() {
			if !item.IsObject() {
				continue
			}
			if m, ok := locateInKeys(item, check, keys); ok {
				return m, true
			}
		}
		return Match{}, false

	case jsonvalue.Object:
		if m, ok := locateInKeys(v, check, keys); ok {
			return m, true
		}
		if result, ok := v.Get("result"); ok {
			if m, ok := Locate(jsonvalue.Unwrap(result), check, keys); ok {
				return m, true
			}
		}
		if text := v.Field("message").Field("text"); text.Truthy() {
			if m, ok := Locate(jsonvalue.Unwrap(text), check, keys); ok {
				return m, true
			}
		}
		for _, key := range v.Keys() {
			inner, changed := jsonvalue.UnwrapChanged(v.Field(key))
			if !changed {
				continue
			}
			if m, ok := Locate(inner, check, keys); ok {
				return m, true
			}
		}
	}

	return Match{}, false
}

func locateInKeys(owner jsonvalue.Value, check Classifier, keys []string) (Match, bool) {
	for _, k := range keys {
		field, ok := owner.Get(k)
		if !ok {
			continue
		}
		if u := jsonvalue.Unwrap(field); check(u) {
			return Match{Items: u, Owner: owner}, true
		}
	}
	return Match{}, false
}

// LocateAboutCompany finds an "about company" object: v itself, one of the
// well-known nested keys, or recursively inside an unwrapped "result".
func LocateAboutCompany(v jsonvalue.Value) (jsonvalue.Value, bool) {
	if !v.IsObject() {
		return jsonvalue.Value{}, false
	}
	if IsAboutCompany(v) {
		return v, true
	}
	for _, k := range aboutKeys {
		if nested := v.Field(k); IsAboutCompany(nested) {
			return nested, true
		}
	}
	if result, ok := v.Get("result"); ok {
		return LocateAboutCompany(jsonvalue.Unwrap(result))
	}
	return jsonvalue.Value{}, false
}
