package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IsChallengeBody reports whether a hop response is an anti-automation
// interstitial rather than provider content.
func IsChallengeBody(body string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	if strings.Contains(title, "just a moment") || strings.Contains(title, "attention required") {
		return true
	}

	if doc.Find("#cf-wrapper").Length() > 0 || doc.Find("#challenge-form").Length() > 0 {
		return true
	}

	lower := strings.ToLower(doc.Text())
	return strings.Contains(lower, "cf-error") || strings.Contains(lower, "checking your browser")
}
