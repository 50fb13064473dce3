// Package heuristics derives structured service records from rendered pages
// without network or model access. All functions are pure and deterministic.
package heuristics

import (
	"math"
	"strconv"
	"strings"

	"github.com/communityforge/scout/internal/model"
)

// fieldExtractor is one step in a per-field fallback cascade; it returns ""
// when the page offers nothing for its field.
type fieldExtractor func(*model.RenderedPage) string

// Extract builds a shape-complete ServiceRecord from a rendered page.
func Extract(page *model.RenderedPage, category model.Category) model.ServiceRecord {
	rec := model.EmptyRecord(category)
	rec.Name = firstNonEmpty(page, nameExtractors)
	rec.Description = firstNonEmpty(page, descriptionExtractors)
	rec.Address = extractAddress(page.StructuredData)
	rec.Location = extractGeo(page.StructuredData)
	rec.HoursOfOperation = ExtractHours(page)
	rec.Contact = extractContact(page)
	return rec
}

func firstNonEmpty(page *model.RenderedPage, cascade []fieldExtractor) string {
	for _, fn := range cascade {
		if v := strings.TrimSpace(fn(page)); v != "" {
			return v
		}
	}
	return ""
}

var nameExtractors = []fieldExtractor{
	func(p *model.RenderedPage) string { return p.SocialTitle },
	func(p *model.RenderedPage) string { return p.Title },
	func(p *model.RenderedPage) string { return structuredString(p.StructuredData, "name") },
}

var descriptionExtractors = []fieldExtractor{
	func(p *model.RenderedPage) string { return p.SocialDesc },
	func(p *model.RenderedPage) string { return p.Description },
	func(p *model.RenderedPage) string { return structuredString(p.StructuredData, "description") },
	func(p *model.RenderedPage) string { return Summarize(p.Text) },
}

// structuredString returns the first non-empty string value for key across
// the page's structured-data records.
func structuredString(records []map[string]any, key string) string {
	for _, rec := range records {
		if v := strings.TrimSpace(asString(rec[key])); v != "" {
			return v
		}
	}
	return ""
}

// extractAddress reads a structured-data address, which may be a literal
// string or a composed postal object.
func extractAddress(records []map[string]any) string {
	for _, rec := range records {
		switch addr := rec["address"].(type) {
		case string:
			if v := strings.TrimSpace(addr); v != "" {
				return v
			}
		case map[string]any:
			parts := make([]string, 0, 4)
			for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
				if v := strings.TrimSpace(asString(addr[key])); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// extractGeo reads geo.latitude/geo.longitude (with lat/lng/lon aliases) from
// the first structured-data record yielding at least one finite number.
func extractGeo(records []map[string]any) *model.GeoPoint {
	for _, rec := range records {
		geo, ok := rec["geo"].(map[string]any)
		if !ok {
			continue
		}
		lat, latOK := coerceFloat(firstPresent(geo, "latitude", "lat"))
		lng, lngOK := coerceFloat(firstPresent(geo, "longitude", "lng", "lon"))
		if latOK || lngOK {
			return &model.GeoPoint{Lat: lat, Lng: lng}
		}
	}
	return nil
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// coerceFloat converts a string or number to a finite float64.
func coerceFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// extractContact pulls phone and email from tel:/mailto: link hrefs (first
// match of each) and sets website to the page origin.
func extractContact(page *model.RenderedPage) model.Contact {
	c := model.Contact{Website: page.Origin()}
	for _, link := range page.Links {
		href := strings.TrimSpace(link.Href)
		lower := strings.ToLower(href)
		switch {
		case c.Phone == "" && strings.HasPrefix(lower, "tel:"):
			c.Phone = strings.TrimSpace(href[len("tel:"):])
		case c.Email == "" && strings.HasPrefix(lower, "mailto:"):
			email := href[len("mailto:"):]
			if i := strings.IndexByte(email, '?'); i >= 0 {
				email = email[:i]
			}
			c.Email = strings.TrimSpace(email)
		}
		if c.Phone != "" && c.Email != "" {
			break
		}
	}
	return c
}

// asString renders scalar structured-data values as strings.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// asSlice normalizes a value that may be a single item or a list.
func asSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}
