package heuristics

import (
	"net/url"
	"sort"
	"strings"

	"github.com/communityforge/scout/internal/model"
)

// probeKeywords orders the link keywords most likely to lead to a page with
// operating hours. Lower index wins.
var probeKeywords = []string{
	"hours",
	"ourservices",
	"services",
	"service",
	"programs",
	"program",
	"contact",
	"about",
	"locations",
	"location",
}

// RankProbeLinks returns the page's same-origin outbound links ordered by
// keyword relevance, excluding the page's own URL. Ties keep first-seen
// order. Callers render a bounded number of the top candidates when hours
// are missing.
func RankProbeLinks(page *model.RenderedPage) []string {
	origin := page.Origin()
	if origin == "" {
		return nil
	}
	self := normalizeURL(page.FinalURL)
	if self == "" {
		self = normalizeURL(page.URL)
	}

	type candidate struct {
		url   string
		score int
		order int
	}
	var cands []candidate
	seen := map[string]bool{}

	for _, link := range page.Links {
		abs := absoluteURL(origin, link.Href)
		if abs == "" || !strings.HasPrefix(abs, origin) {
			continue
		}
		norm := normalizeURL(abs)
		if norm == self || seen[norm] {
			continue
		}
		score := keywordScore(abs, link.Text)
		if score < 0 {
			continue
		}
		seen[norm] = true
		cands = append(cands, candidate{url: abs, score: score, order: len(cands)})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].order < cands[j].order
	})

	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.url
	}
	return out
}

// keywordScore returns the index of the first probe keyword found in the
// link's URL or anchor text, or -1 when none match.
func keywordScore(href, text string) int {
	haystack := strings.ToLower(href + " " + text)
	for i, kw := range probeKeywords {
		if strings.Contains(haystack, kw) {
			return i
		}
	}
	return -1
}

// absoluteURL resolves href against the page origin. Fragment-only and
// non-http schemes yield "".
func absoluteURL(origin, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	base, err := url.Parse(origin + "/")
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// normalizeURL strips trailing slashes and fragments for equality checks.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	u.Fragment = ""
	return strings.TrimRight(strings.ToLower(u.String()), "/")
}
