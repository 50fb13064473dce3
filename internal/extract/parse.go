package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/communityforge/scout/internal/model"
)

// agentRecord is the tolerant shape the model is asked to return. Decoding
// is lenient; normalization back-fills anything missing so downstream
// consumers always see a shape-complete record.
type agentRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	Location    *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
	ServiceCategory  string `json:"serviceCategory"`
	HoursOfOperation *struct {
		Periods     []model.Period `json:"periods"`
		WeekdayText []string       `json:"weekdayText"`
	} `json:"hoursOfOperation"`
	Contact *struct {
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Website string `json:"website"`
	} `json:"contact"`
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or prose wrapping: strip fences, then take the substring between the
// first "{" and the last "}".
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseRecord parses model output into a ServiceRecord. The raw text is
// tried as-is first; on failure the brace-delimited substring is tried.
func parseRecord(text string, category model.Category) (model.ServiceRecord, error) {
	var parsed agentRecord
	if err := decodeObject(text, &parsed); err != nil {
		if err2 := decodeObject(cleanJSON(text), &parsed); err2 != nil {
			return model.ServiceRecord{}, eris.Wrap(err, "extract: parse agent output")
		}
	}
	return normalizeRecord(parsed, category), nil
}

// decodeObject rejects anything that is not a single JSON object.
func decodeObject(text string, out *agentRecord) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), out)
}

func normalizeRecord(in agentRecord, category model.Category) model.ServiceRecord {
	rec := model.EmptyRecord(category)
	rec.Name = strings.TrimSpace(in.Name)
	rec.Description = strings.TrimSpace(in.Description)
	rec.Address = strings.TrimSpace(in.Address)

	if in.Location != nil && (in.Location.Lat != nil || in.Location.Lng != nil) {
		loc := &model.GeoPoint{}
		if in.Location.Lat != nil {
			loc.Lat = *in.Location.Lat
		}
		if in.Location.Lng != nil {
			loc.Lng = *in.Location.Lng
		}
		rec.Location = loc
	}

	if in.HoursOfOperation != nil {
		if in.HoursOfOperation.Periods != nil {
			rec.HoursOfOperation.Periods = in.HoursOfOperation.Periods
		}
		if in.HoursOfOperation.WeekdayText != nil {
			rec.HoursOfOperation.WeekdayText = in.HoursOfOperation.WeekdayText
		}
	}

	if in.Contact != nil {
		rec.Contact = model.Contact{
			Phone:   strings.TrimSpace(in.Contact.Phone),
			Email:   strings.TrimSpace(in.Contact.Email),
			Website: strings.TrimSpace(in.Contact.Website),
		}
	}

	return rec
}
