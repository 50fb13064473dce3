package model

import "net/url"

// Category identifies a class of social-service provider. Free-form values
// are accepted; these constants cover the categories staff search for most.
type Category string

const (
	CategoryFoodBank Category = "FOOD_BANK"
	CategoryShelter  Category = "SHELTER"
	CategoryClothing Category = "CLOTHING"
	CategoryMedical  Category = "MEDICAL"
	CategoryHousing  Category = "HOUSING"
	CategoryLegalAid Category = "LEGAL_AID"
)

// Label returns a human-readable phrase for the category, used when building
// search queries. Unknown categories are lowercased with underscores spaced.
func (c Category) Label() string {
	switch c {
	case CategoryFoodBank:
		return "food bank"
	case CategoryShelter:
		return "homeless shelter"
	case CategoryClothing:
		return "free clothing closet"
	case CategoryMedical:
		return "free medical clinic"
	case CategoryHousing:
		return "housing assistance"
	case CategoryLegalAid:
		return "free legal aid"
	}
	out := make([]rune, 0, len(c))
	for _, r := range string(c) {
		switch {
		case r == '_':
			out = append(out, ' ')
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeOfDay marks a weekly opening or closing instant. Day uses 0=Sunday
// through 6=Saturday; Time is a 4-digit 24-hour string such as "0900".
type TimeOfDay struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

// Period is one contiguous open interval in a provider's weekly schedule.
type Period struct {
	Open  TimeOfDay `json:"open"`
	Close TimeOfDay `json:"close"`
}

// Hours holds a provider's weekly schedule in both structured and
// human-readable forms.
type Hours struct {
	Periods     []Period `json:"periods"`
	WeekdayText []string `json:"weekdayText"`
}

// Contact holds the ways to reach a provider.
type Contact struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// ServiceRecord is the normalized output describing one provider; the team
// calls these "sanity documents". The shape is always complete: missing
// fields are empty strings/arrays or a null location, never absent keys.
type ServiceRecord struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Address         string    `json:"address"`
	Location        *GeoPoint `json:"location"`
	ServiceCategory Category  `json:"serviceCategory"`
	HoursOfOperation Hours    `json:"hoursOfOperation"`
	Contact         Contact   `json:"contact"`
}

// EmptyRecord returns a shape-complete record for the given category.
func EmptyRecord(category Category) ServiceRecord {
	return ServiceRecord{
		ServiceCategory: category,
		HoursOfOperation: Hours{
			Periods:     []Period{},
			WeekdayText: []string{},
		},
	}
}

// originOf returns scheme://host for a parseable absolute URL, else "".
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
