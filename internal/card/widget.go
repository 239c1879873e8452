// Package card recognises structured "card widget" payloads in chatbot
// output. The upstream agent does not follow a fixed schema, so recognition
// is structural and best-effort: a payload that matches none of the known
// shapes is simply not a card.
package card

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
)

// Template is the discriminator carried by every widget.
const Template = "card_widget"

// Type selects how a widget's payload is rendered.
type Type string

const (
	TypeServiceGrid  Type = "service_grid"
	TypeProcessGrid  Type = "process_grid"
	TypeTimeSlotGrid Type = "time_slot_grid"
	TypeAboutCompany Type = "about_company"
)

// Action is an optional button or link attached to a widget.
type Action struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Widget is the single structured result of an assistant turn.
type Widget struct {
	Template string            `json:"template"`
	Type     Type              `json:"type"`
	Payload  jsonvalue.Value   `json:"payload"`
	Labels   map[string]string `json:"labels,omitempty"`
	Actions  []Action          `json:"actions,omitempty"`
}

// ServiceItem is one entry of a service_grid payload.
type ServiceItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}

// ProcessItem is one entry of a process_grid payload.
type ProcessItem struct {
	Step        StepLabel `json:"step"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
}

// TimeSlot is one bookable slot of a time_slot_grid payload.
type TimeSlot struct {
	Start   string `json:"start"`
	End     string `json:"end,omitempty"`
	EndTime string `json:"end_time,omitempty"`
}

// AboutCompany is the payload of an about_company widget.
type AboutCompany struct {
	Image       string `json:"image,omitempty"`
	Title       string `json:"title,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
}

// StepLabel accepts a process step given either as a number or a string.
type StepLabel string

func (s *StepLabel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = StepLabel(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = StepLabel(n.String())
	return nil
}

// Int returns the step as an integer when it is numeric.
func (s StepLabel) Int() (int, bool) {
	n, err := strconv.Atoi(string(s))
	return n, err == nil
}

// Services decodes a service_grid payload.
func (w *Widget) Services() []ServiceItem {
	var items []ServiceItem
	if err := w.Payload.Field("services").Decode(&items); err != nil {
		return nil
	}
	return items
}

// Steps decodes a process_grid payload.
func (w *Widget) Steps() []ProcessItem {
	var items []ProcessItem
	if err := w.Payload.Field("steps").Decode(&items); err != nil {
		return nil
	}
	return items
}

// TimeSlots decodes a time_slot_grid payload and its optional date.
func (w *Widget) TimeSlots() ([]TimeSlot, string) {
	var slots []TimeSlot
	if err := w.Payload.Field("slots").Decode(&slots); err != nil {
		return nil, ""
	}
	date, _ := w.Payload.Field("date").Str()
	return slots, date
}

// AboutCompany decodes an about_company payload.
func (w *Widget) AboutCompany() (AboutCompany, bool) {
	var about AboutCompany
	if !w.Payload.IsObject() {
		return about, false
	}
	if err := w.Payload.Decode(&about); err != nil {
		return about, false
	}
	return about, true
}

// fromValue converts an explicitly embedded widget. Anything other than an
// object is not a usable widget.
func fromValue(v jsonvalue.Value) *Widget {
	if !v.IsObject() {
		return nil
	}
	w := &Widget{Template: Template, Payload: v.Field("payload")}
	if tmpl, ok := v.Field("template").Str(); ok && tmpl != "" {
		w.Template = tmpl
	}
	if typ, ok := v.Field("type").Str(); ok {
		w.Type = Type(typ)
	}
	if labels := v.Field("labels"); labels.IsObject() {
		w.Labels = make(map[string]string, labels.Len())
		for _, k := range labels.Keys() {
			if s, ok := labels.Field(k).Str(); ok {
				w.Labels[k] = s
			}
		}
	}
	if actions := v.Field("actions"); actions.IsArray() {
		var decoded []Action
		if err := actions.Decode(&decoded); err == nil {
			w.Actions = decoded
		}
	}
	return w
}

func newWidget(t Type, payload jsonvalue.Value) *Widget {
	return &Widget{Template: Template, Type: t, Payload: payload}
}
