package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const noiseSelector = "script, style, noscript, nav, footer, header, aside, iframe, form, svg"

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, dt, dd"

// extractHTML returns the page title and its main text. Preformatted blocks
// keep their whitespace so code samples survive.
func extractHTML(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title := collapse(doc.Find("title").First().Text())
	doc.Find(noiseSelector).Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var b strings.Builder
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (li > p) are covered by their outermost match.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		var text string
		if goquery.NodeName(s) == "pre" {
			text = strings.Trim(s.Text(), "\n")
		} else {
			text = collapse(s.Text())
		}
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if goquery.NodeName(s) == "li" {
			b.WriteString("- ")
		}
		b.WriteString(text)
	})

	text := b.String()
	if text == "" {
		text = collapse(root.Text())
	}
	return title, text, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
