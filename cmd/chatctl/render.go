package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/card"
	"github.com/tjfontaine/chatwidget-gateway/internal/domain"
	"github.com/tjfontaine/chatwidget-gateway/internal/stream"
)

// renderer prints a turn's updates as plain text. Live text is printed as it
// grows; the final turn text is printed again only if it differs from what
// was shown.
type renderer struct {
	w     io.Writer
	shown string
}

func (r *renderer) update(u stream.Update) {
	switch u.Kind {
	case stream.UpdateLiveText:
		// Sanitizing can drop text already shown; wait for the final turn then.
		if rest, ok := strings.CutPrefix(u.LiveText, r.shown); ok {
			fmt.Fprint(r.w, rest)
			r.shown = u.LiveText
		}
	case stream.UpdatePendingWidget:
		if u.Widget != nil {
			fmt.Fprintf(r.w, "\n[loading %s]\n", u.Widget.Type)
		}
	case stream.UpdateTurn:
		if r.shown != "" {
			fmt.Fprintln(r.w)
		}
		if u.Turn != nil {
			if u.Turn.Text != "" && u.Turn.Text != r.shown {
				fmt.Fprintln(r.w, u.Turn.Text)
			}
			if u.Turn.CardWidget != nil {
				writeWidget(r.w, u.Turn.CardWidget)
			}
		}
		r.shown = ""
	case stream.UpdateError:
		fmt.Fprintf(r.w, "\n! %s\n", u.Error)
	case stream.UpdateAborted:
		fmt.Fprintln(r.w, "\n! request timed out")
		r.shown = ""
	case stream.UpdateConversation:
	}
}

func writeTurn(w io.Writer, t domain.ChatTurn) {
	switch t.Role {
	case domain.RoleUser:
		fmt.Fprintf(w, "> %s\n", t.Text)
	default:
		if t.Text != "" {
			fmt.Fprintln(w, t.Text)
		}
		if t.CardWidget != nil {
			writeWidget(w, t.CardWidget)
		}
	}
}

func writeWidget(w io.Writer, widget *card.Widget) {
	switch widget.Type {
	case card.TypeServiceGrid:
		for _, s := range widget.Services() {
			fmt.Fprintf(w, "  * %s: %s\n", s.Title, s.Description)
		}
	case card.TypeProcessGrid:
		for _, s := range widget.Steps() {
			fmt.Fprintf(w, "  %s. %s: %s\n", s.Step, s.Title, s.Description)
		}
	case card.TypeTimeSlotGrid:
		slots, date := widget.TimeSlots()
		if date != "" {
			fmt.Fprintf(w, "  %s\n", date)
		}
		for _, s := range slots {
			end := s.End
			if end == "" {
				end = s.EndTime
			}
			if end != "" {
				fmt.Fprintf(w, "  [%s-%s]\n", s.Start, end)
			} else {
				fmt.Fprintf(w, "  [%s]\n", s.Start)
			}
		}
	case card.TypeAboutCompany:
		if about, ok := widget.AboutCompany(); ok {
			name := about.CompanyName
			if name == "" {
				name = about.Title
			}
			if name != "" {
				fmt.Fprintf(w, "  %s\n", name)
			}
			desc := about.Description
			if desc == "" {
				desc = about.Text
			}
			if desc != "" {
				fmt.Fprintf(w, "  %s\n", desc)
			}
		}
	default:
		fmt.Fprintf(w, "  [%s widget]\n", widget.Type)
	}
}
