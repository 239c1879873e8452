package card

import (
	"regexp"
	"strings"

	"github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"
)

// aboutKeywords mark prose that describes the company. Two hits qualify.
var aboutKeywords = []string{
	"company", "founded", "ceo", "founder", "headquarters", "about us",
	"our mission", "established", "associates", "consulting", "framework", "advisory",
	"chief executive", "managing director", "our team", "our approach",
}

const minAboutKeywords = 2

var (
	markdownImagePattern      = regexp.MustCompile(`(?i)!\[.*?\]\((https?://[^\s)]+)\)`)
	markdownImageStripPattern = regexp.MustCompile(`!\[.*?\]\(https?://[^\s)]+\)`)
	bareImageURLPattern       = regexp.MustCompile(`(?i)(https?://[^\s<>"]+\.(?:jpg|jpeg|png|gif|webp|svg)(?:\?[^\s<>"]*)?)`)
	excessNewlinesPattern     = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeAboutCompany reports whether text mentions at least two of the
// company keywords, case-insensitively.
func LooksLikeAboutCompany(text string) bool {
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range aboutKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return matches >= minAboutKeywords
}

// FromAboutText turns company prose into an about_company widget. The first
// markdown image, or failing that the first bare image URL, becomes the card
// image and is removed from the description.
func FromAboutText(text string) *Widget {
	if text == "" || !LooksLikeAboutCompany(text) {
		return nil
	}

	members := make([]jsonvalue.Member, 0, 2)
	if image := imageURL(text); image != "" {
		members = append(members, jsonvalue.Member{Key: "image", Value: jsonvalue.StringValue(image)})
	}
	members = append(members, jsonvalue.Member{
		Key:   "description",
		Value: jsonvalue.StringValue(stripImages(text)),
	})
	return newWidget(TypeAboutCompany, jsonvalue.ObjectValue(members...))
}

func imageURL(text string) string {
	if m := markdownImagePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bareImageURLPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func stripImages(text string) string {
	text = markdownImageStripPattern.ReplaceAllString(text, "")
	text = bareImageURLPattern.ReplaceAllString(text, "")
	text = excessNewlinesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
