package fetcher

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var innerWhitespace = regexp.MustCompile(`[ \t]+`)

// Page is the rendered state of a document at capture time.
type Page struct {
	URL string

	html     string
	text     string
	elements map[string][]string
	doc      *goquery.Document
}

// NewPage builds a Page from captured HTML and text. elements holds innerText
// values already collected in the browser, keyed by CSS selector.
func NewPage(url, html, text string, elements map[string][]string) *Page {
	p := &Page{
		URL:      url,
		html:     html,
		text:     Normalize(text),
		elements: make(map[string][]string, len(elements)),
	}
	for sel, texts := range elements {
		cleaned := make([]string, 0, len(texts))
		for _, t := range texts {
			cleaned = append(cleaned, Normalize(t))
		}
		p.elements[sel] = cleaned
	}
	if p.text == "" && html != "" {
		if doc := p.document(); doc != nil {
			p.text = Normalize(doc.Find("body").Text())
		}
	}
	return p
}

// HTML returns the raw outer HTML.
func (p *Page) HTML() string { return p.html }

// Text returns the normalised visible text.
func (p *Page) Text() string { return p.text }

// Query returns the text of every element matching selector, in document order.
func (p *Page) Query(selector string) []string {
	if texts, ok := p.elements[selector]; ok {
		return texts
	}
	doc := p.document()
	if doc == nil {
		return nil
	}
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, Normalize(s.Text()))
	})
	return out
}

func (p *Page) document() *goquery.Document {
	if p.doc != nil {
		return p.doc
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return nil
	}
	p.doc = doc
	return doc
}

// Normalize folds Unicode spaces into ASCII spaces and collapses runs of blanks on each line.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u00a0', '\u2007', '\u2009', '\u202f', '\u3000':
			return ' '
		case '\u200b', '\ufeff':
			return -1
		case '\r':
			return '\n'
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(innerWhitespace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
