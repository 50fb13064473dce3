package render

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/communityforge/scout/internal/model"
)

// maxLinks caps how many anchors are carried on a RenderedPage.
const maxLinks = 500

// skippedElements are removed from the text view entirely; their content is
// chrome, not page content.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"template": true,
	"svg":      true,
}

// ParsePage builds a RenderedPage from rendered HTML: title and meta tags,
// social-preview tags, outbound links, JSON-LD structured data, and a
// line-structured text view capped at maxTextBytes.
func ParsePage(rawURL, finalURL string, httpStatus int, pageHTML string, maxTextBytes int) (*model.RenderedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, eris.Wrapf(err, "render: parse html for %s", rawURL)
	}

	page := &model.RenderedPage{
		URL:            rawURL,
		FinalURL:       finalURL,
		HTTPStatus:     httpStatus,
		FetchedAt:      time.Now().UTC(),
		Title:          strings.TrimSpace(doc.Find("title").First().Text()),
		Description:    metaContent(doc, "description"),
		Keywords:       metaContent(doc, "keywords"),
		SocialTitle:    socialContent(doc, "og:title", "twitter:title"),
		SocialDesc:     socialContent(doc, "og:description", "twitter:description"),
		Links:          extractLinks(doc),
		StructuredData: extractStructuredData(doc),
	}

	text := extractText(doc)
	if len(text) > maxTextBytes {
		// Back up to a rune boundary so the capped text stays valid UTF-8.
		cut := maxTextBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		page.Truncated = true
	}
	page.Text = text

	return page, nil
}

// metaContent returns the content of <meta name=...>.
func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

// socialContent returns the first non-empty social-preview tag, checking both
// property= and name= attributes.
func socialContent(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		for _, sel := range []string{`meta[property="` + key + `"]`, `meta[name="` + key + `"]`} {
			if content, ok := doc.Find(sel).First().Attr("content"); ok {
				if v := strings.TrimSpace(content); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func extractLinks(doc *goquery.Document) []model.Link {
	links := make([]model.Link, 0, 64)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		links = append(links, model.Link{
			Href: href,
			Text: strings.Join(strings.Fields(s.Text()), " "),
		})
		return len(links) < maxLinks
	})
	return links
}

// extractStructuredData parses JSON-LD script blocks into flat object lists,
// expanding top-level arrays and @graph containers.
func extractStructuredData(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return
		}
		out = append(out, flattenStructured(parsed)...)
	})
	if out == nil {
		out = []map[string]any{}
	}
	return out
}

func flattenStructured(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenStructured(graph)...)
		}
		out = append(out, t)
	case []any:
		for _, item := range t {
			out = append(out, flattenStructured(item)...)
		}
	}
	return out
}

// extractText walks the body producing one line per text node, skipping
// chrome elements. Keeping line structure matters: the hour-scanning
// heuristics work on lines.
func extractText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range body.Nodes {
		walk(n)
	}
	return strings.TrimRight(b.String(), "\n")
}
