package model

import "time"

// Link is an outbound anchor found on a rendered page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// RenderedPage is the output of the page-render collaborator for one URL.
// Immutable after creation.
type RenderedPage struct {
	URL            string           `json:"url"`
	FinalURL       string           `json:"final_url"`
	HTTPStatus     int              `json:"http_status"`
	FetchedAt      time.Time        `json:"fetched_at"`
	Text           string           `json:"text"`
	Links          []Link           `json:"links"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Keywords       string           `json:"keywords"`
	SocialTitle    string           `json:"social_title"`
	SocialDesc     string           `json:"social_description"`
	StructuredData []map[string]any `json:"structured_data"`
	Truncated      bool             `json:"truncated"`
}

// Origin returns scheme://host of the final resolved URL, falling back to the
// originally requested URL when no redirect was observed.
func (p *RenderedPage) Origin() string {
	for _, raw := range []string{p.FinalURL, p.URL} {
		if o := originOf(raw); o != "" {
			return o
		}
	}
	return ""
}
