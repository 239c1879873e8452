package tokens

import (
	"testing"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
)

func TestTiktokenCounter_Count(t *testing.T) {
	c := NewTiktokenCounter("")
	if err := c.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{name: "empty", text: "", minTokens: 0, maxTokens: 0},
		{name: "greeting", text: "Hello, how are you?", minTokens: 4, maxTokens: 8},
		{name: "sentence", text: "Acme Corp was founded in 1990 by our CEO Jane Doe.", minTokens: 8, maxTokens: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Count(tt.text)
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("Count(%q) = %d, want between %d and %d", tt.text, got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTiktokenCounter_UnknownEncodingFallsBack(t *testing.T) {
	c := NewTiktokenCounter("no_such_encoding")
	if c.Err() == nil {
		t.Fatal("expected error for unknown encoding")
	}
	if got := c.Count("abcdefgh"); got != 2 {
		t.Errorf("Count() = %d, want 2 from estimator", got)
	}
}

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := e.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestCountTurn(t *testing.T) {
	e := NewEstimator()

	text := domain.NewUserTurn("abcdefgh")
	if got := CountTurn(e, &text); got != 2 {
		t.Errorf("CountTurn(text) = %d, want 2", got)
	}

	widget := &card.Widget{
		Template: card.Template,
		Type:     card.TypeAboutCompany,
		Payload:  jsonvalue.ObjectValue(jsonvalue.Member{Key: "description", Value: jsonvalue.StringValue("We advise.")}),
	}
	withWidget := domain.NewAssistantTurn("", widget)
	if got := CountTurn(e, &withWidget); got == 0 {
		t.Error("CountTurn(widget) = 0, want widget tokens counted")
	}
}
