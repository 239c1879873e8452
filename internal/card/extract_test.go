package card

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromObservation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType Type
		wantNil  bool
	}{
		{
			name:     "services",
			input:    `{"services":[{"id":"1","title":"A","description":"d"}]}`,
			wantType: TypeServiceGrid,
		},
		{
			name:     "process via company key",
			input:    `{"company":[{"step":1,"title":"Discover","description":"d"}]}`,
			wantType: TypeProcessGrid,
		},
		{
			name:     "time slots",
			input:    `{"date":"2025-04-01","available_slots":[{"start":"2025-04-01T09:00:00Z","end":"2025-04-01T09:30:00Z"}]}`,
			wantType: TypeTimeSlotGrid,
		},
		{
			name:     "about company beats slots",
			input:    `{"about":{"title":"Acme","description":"We advise."},"slots":[{"start":"09:00"}]}`,
			wantType: TypeAboutCompany,
		},
		{
			name:     "slots beat process and services",
			input:    `{"slots":[{"start":"09:00"}],"steps":[{"step":1,"title":"A","description":"d"}],"services":[{"id":"1","title":"A","description":"d"}]}`,
			wantType: TypeTimeSlotGrid,
		},
		{
			name:     "double encoded",
			input:    `"{\"services\":[{\"id\":\"1\",\"title\":\"A\",\"description\":\"d\"}]}"`,
			wantType: TypeServiceGrid,
		},
		{name: "empty", input: "", wantNil: true},
		{name: "not json", input: "Here are our services", wantNil: true},
		{name: "unknown shape", input: `{"weather":"sunny"}`, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := FromObservation(tt.input)
			if tt.wantNil {
				if w != nil {
					t.Fatalf("FromObservation() = %+v, want nil", w)
				}
				return
			}
			if w == nil {
				t.Fatal("FromObservation() = nil")
			}
			if w.Template != Template {
				t.Errorf("Template = %q, want %q", w.Template, Template)
			}
			if w.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", w.Type, tt.wantType)
			}
		})
	}
}

func TestFromObservation_ServicePayload(t *testing.T) {
	w := FromObservation(`{"services":[{"id":"1","title":"A","description":"d"}]}`)
	if w == nil {
		t.Fatal("FromObservation() = nil")
	}

	want := []ServiceItem{{ID: "1", Title: "A", Description: "d"}}
	if diff := cmp.Diff(want, w.Services()); diff != "" {
		t.Errorf("Services() mismatch (-want +got):\n%s", diff)
	}
}

func TestFromObservation_SlotDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantDate string
	}{
		{
			name:     "owner date",
			input:    `[{"date":"2025-05-01","slots":[{"start":"09:00"}]}]`,
			wantDate: "2025-05-01",
		},
		{
			name:     "top-level date when owner has none",
			input:    `{"date":"2025-05-02","result":{"slots":[{"start":"09:00"}]}}`,
			wantDate: "2025-05-02",
		},
		{
			name:  "no date",
			input: `{"slots":[{"start":"09:00"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := FromObservation(tt.input)
			if w == nil || w.Type != TypeTimeSlotGrid {
				t.Fatalf("FromObservation() = %+v, want time_slot_grid", w)
			}
			slots, date := w.TimeSlots()
			if len(slots) != 1 || slots[0].Start != "09:00" {
				t.Errorf("TimeSlots() = %+v", slots)
			}
			if date != tt.wantDate {
				t.Errorf("date = %q, want %q", date, tt.wantDate)
			}
		})
	}
}

func TestFromObservation_ExplicitWidget(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantType  Type
		wantTitle string
	}{
		{
			name:      "card_widget object",
			input:     `{"card_widget":{"template":"card_widget","type":"service_grid","payload":{"services":[]},"labels":{"title":"Our Services"}}}`,
			wantType:  TypeServiceGrid,
			wantTitle: "Our Services",
		},
		{
			name:     "card_widget string",
			input:    `{"card_widget":"{\"template\":\"card_widget\",\"type\":\"process_grid\",\"payload\":{\"steps\":[]}}"}`,
			wantType: TypeProcessGrid,
		},
		{
			name:     "template field deep in encoded result",
			input:    `{"result":"{\"data\":[{\"template\":\"card_widget\",\"type\":\"about_company\",\"payload\":{\"title\":\"Acme\"}}]}"}`,
			wantType: TypeAboutCompany,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := FromObservation(tt.input)
			if w == nil {
				t.Fatal("FromObservation() = nil")
			}
			if w.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", w.Type, tt.wantType)
			}
			if got := w.Labels["title"]; got != tt.wantTitle {
				t.Errorf("Labels[title] = %q, want %q", got, tt.wantTitle)
			}
		})
	}
}

func TestFromObservation_ExplicitWidgetActions(t *testing.T) {
	w := FromObservation(`{"card_widget":{"type":"service_grid","payload":{},"actions":[{"type":"button","label":"Book","message":"Book a call"}]}}`)
	if w == nil {
		t.Fatal("FromObservation() = nil")
	}
	want := []Action{{Type: "button", Label: "Book", Message: "Book a call"}}
	if diff := cmp.Diff(want, w.Actions); diff != "" {
		t.Errorf("Actions mismatch (-want +got):\n%s", diff)
	}
	if w.Template != Template {
		t.Errorf("Template = %q, want default %q", w.Template, Template)
	}
}

func TestFromObservations(t *testing.T) {
	services := `{"services":[{"id":"1","title":"A","description":"d"}]}`
	slots := `{"slots":[{"start":"09:00"}]}`
	explicit := `{"card_widget":{"template":"card_widget","type":"process_grid","payload":{"steps":[]}}}`
	aboutAndSlots := `{"image":"https://x.com/a.png","slots":[{"start":"09:00"}]}`

	tests := []struct {
		name         string
		observations []string
		wantType     Type
		wantNil      bool
	}{
		{name: "marker wins over earlier shapes", observations: []string{services, slots, explicit}, wantType: TypeProcessGrid},
		{name: "slots before generic pass", observations: []string{services, slots}, wantType: TypeTimeSlotGrid},
		{name: "generic pass", observations: []string{"", "not json", services}, wantType: TypeServiceGrid},
		{name: "about outranks slots in one observation", observations: []string{aboutAndSlots}, wantType: TypeAboutCompany},
		{name: "slots in a later observation beat an earlier about", observations: []string{`{"title":"Acme","description":"We consult"}`, slots}, wantType: TypeTimeSlotGrid},
		{name: "about alone still found", observations: []string{`{"title":"Acme","description":"We consult"}`}, wantType: TypeAboutCompany},
		{name: "nothing", observations: []string{"", "plain"}, wantNil: true},
		{name: "no thoughts", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := FromObservations(tt.observations)
			if tt.wantNil {
				if w != nil {
					t.Fatalf("FromObservations() = %+v, want nil", w)
				}
				return
			}
			if w == nil {
				t.Fatal("FromObservations() = nil")
			}
			if w.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", w.Type, tt.wantType)
			}
		})
	}
}

func TestFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType Type
		wantNil  bool
	}{
		{
			name:     "fenced json block",
			content:  "Here you go:\n```json\n{\"services\":[{\"id\":\"1\",\"title\":\"A\",\"description\":\"d\"}]}\n```\nAnything else?",
			wantType: TypeServiceGrid,
		},
		{
			name:     "brace span",
			content:  `Sure! {"slots":[{"start":"09:00"}]} Let me know.`,
			wantType: TypeTimeSlotGrid,
		},
		{
			name:     "company prose",
			content:  "Hyun & Associates is a consulting firm. Our mission is clarity.",
			wantType: TypeAboutCompany,
		},
		{name: "plain answer", content: "Hello world", wantNil: true},
		{name: "broken json", content: "see {not json}", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := FromContent(tt.content)
			if tt.wantNil {
				if w != nil {
					t.Fatalf("FromContent() = %+v, want nil", w)
				}
				return
			}
			if w == nil {
				t.Fatal("FromContent() = nil")
			}
			if w.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", w.Type, tt.wantType)
			}
		})
	}
}

func TestFromAboutText(t *testing.T) {
	text := "Acme Corp was founded in 1990 by our CEO Jane Doe. ![logo](https://x.com/a.png)"

	w := FromContent(text)
	if w == nil {
		t.Fatal("FromContent() = nil")
	}
	if w.Type != TypeAboutCompany {
		t.Fatalf("Type = %q, want %q", w.Type, TypeAboutCompany)
	}

	about, ok := w.AboutCompany()
	if !ok {
		t.Fatal("AboutCompany() not decodable")
	}
	if about.Image != "https://x.com/a.png" {
		t.Errorf("Image = %q", about.Image)
	}
	if strings.Contains(about.Description, "![") || strings.Contains(about.Description, "a.png") {
		t.Errorf("Description still has image markup: %q", about.Description)
	}
	if about.Description != "Acme Corp was founded in 1990 by our CEO Jane Doe." {
		t.Errorf("Description = %q", about.Description)
	}
}

func TestFromAboutText_BareImageAndNewlines(t *testing.T) {
	text := "About us\n\n\n\nWe are an advisory practice.\nhttps://cdn.example.com/team.JPG?w=600\n"

	w := FromAboutText(text)
	if w == nil {
		t.Fatal("FromAboutText() = nil")
	}
	about, _ := w.AboutCompany()
	if about.Image != "https://cdn.example.com/team.JPG?w=600" {
		t.Errorf("Image = %q", about.Image)
	}
	if about.Description != "About us\n\nWe are an advisory practice." {
		t.Errorf("Description = %q", about.Description)
	}
}

func TestLooksLikeAboutCompany(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Our CEO founded the company", true},
		{"The FOUNDER set up HEADQUARTERS in Seoul", true},
		{"We offer consulting", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeAboutCompany(tt.text); got != tt.want {
			t.Errorf("LooksLikeAboutCompany(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
