package card

import (
	"regexp"
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// hasMarker reports whether text advertises an embedded widget.
func hasMarker(text string) bool {
	return strings.Contains(text, Template) || strings.Contains(text, `"template"`)
}

// FromObservation extracts a widget from one tool observation. An explicitly
// embedded widget wins; otherwise the payload is classified by shape in the
// order about_company, time_slot_grid, process_grid, service_grid.
func FromObservation(observation string) *Widget {
	if observation == "" {
		return nil
	}

	if hasMarker(observation) {
		if data, ok := jsonvalue.ParseUnwrapped(observation); ok {
			if w := findExplicit(data); w != nil {
				return w
			}
		}
	}

	data, ok := jsonvalue.ParseUnwrapped(observation)
	if !ok {
		return nil
	}
	return classify(data)
}

// FromObservations extracts a widget from the observations of a turn's
// thoughts, in arrival order. Three passes are made and the first hit wins:
// marker-bearing observations, then a direct time-slot search (slot payloads
// often carry no marker), then every observation through FromObservation.
func FromObservations(observations []string) *Widget {
	for _, obs := range observations {
		if obs == "" || !hasMarker(obs) {
			continue
		}
		if w := FromObservation(obs); w != nil {
			return w
		}
	}

	for _, obs := range observations {
		if obs == "" {
			continue
		}
		data, ok := jsonvalue.ParseUnwrapped(obs)
		if !ok {
			continue
		}
		w := slotWidget(data)
		if w == nil {
			continue
		}
		// An about_company object in the same payload outranks its slots.
		if about, ok := LocateAboutCompany(data); ok {
			return newWidget(TypeAboutCompany, about)
		}
		return w
	}

	for _, obs := range observations {
		if w := FromObservation(obs); w != nil {
			return w
		}
	}
	return nil
}

// FromContent extracts a widget from the free-form answer text: fenced JSON
// blocks first, then the outermost brace-delimited span, then the plain-text
// about_company heuristic.
func FromContent(content string) *Widget {
	if content == "" {
		return nil
	}

	if strings.Contains(content, "{") {
		for _, m := range fencedJSONPattern.FindAllStringSubmatch(content, -1) {
			if w := FromObservation(strings.TrimSpace(m[1])); w != nil {
				return w
			}
		}

		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start >= 0 && end > start {
			if w := FromObservation(content[start : end+1]); w != nil {
				return w
			}
		}
	}

	return FromAboutText(content)
}

// classify synthesises a widget from a payload without an explicit widget.
func classify(data jsonvalue.Value) *Widget {
	if about, ok := LocateAboutCompany(data); ok {
		return newWidget(TypeAboutCompany, about)
	}
	if w := slotWidget(data); w != nil {
		return w
	}
	if m, ok := Locate(data, IsProcessList, processKeys); ok {
		return newWidget(TypeProcessGrid, jsonvalue.ObjectValue(
			jsonvalue.Member{Key: "steps", Value: m.Items},
		))
	}
	if m, ok := Locate(data, IsServiceList, serviceKeys); ok {
		return newWidget(TypeServiceGrid, jsonvalue.ObjectValue(
			jsonvalue.Member{Key: "services", Value: m.Items},
		))
	}
	return nil
}

// slotWidget builds a time_slot_grid widget. The date comes from the object
// that held the slots, falling back to the top-level payload.
func slotWidget(data jsonvalue.Value) *Widget {
	m, ok := Locate(data, IsTimeSlotList, slotKeys)
	if !ok {
		return nil
	}
	members := []jsonvalue.Member{{Key: "slots", Value: m.Items}}
	date := m.Owner.Field("date")
	if !date.Truthy() {
		date = data.Field("date")
	}
	if date.Truthy() {
		members = append(members, jsonvalue.Member{Key: "date", Value: date})
	}
	return newWidget(TypeTimeSlotGrid, jsonvalue.ObjectValue(members...))
}

// findExplicit searches for a "card_widget" field, or an object whose
// template is "card_widget", at any depth. String fields are parsed once and
// searched when they hold JSON.
func findExplicit(v jsonvalue.Value) *Widget {
	switch v.Kind() {
	case jsonvalue.Object:
		if cw, ok := v.Get(Template); ok {
			if s, isStr := cw.Str(); isStr {
				parsed, err := jsonvalue.ParseString(s)
				if err != nil {
					return nil
				}
				return fromValue(parsed)
			}
			return fromValue(cw)
		}
		if tmpl, ok := v.Field("template").Str(); ok && tmpl == Template {
			return fromValue(v)
		}
		for _, key := range v.Keys() {
			if w := findExplicitIn(v.Field(key)); w != nil {
				return w
			}
		}
	case jsonvalue.Array:
		for _, item := range v.Items() {
			if w := findExplicitIn(item); w != nil {
				return w
			}
		}
	}
	return nil
}

func findExplicitIn(child jsonvalue.Value) *Widget {
	if s, ok := child.Str(); ok {
		parsed, err := jsonvalue.ParseString(s)
		if err != nil {
			return nil
		}
		child = parsed
	}
	if child.IsObject() || child.IsArray() {
		return findExplicit(child)
	}
	return nil
}
