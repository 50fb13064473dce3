package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/communityforge/scout/internal/model"
)

// WriteArtifacts persists the two per-run output files under dir: the query
// list as plain text (one query per line, no numbering) and the extracted
// records as a JSON array, one element per processed URL.
func WriteArtifacts(dir string, run *model.PipelineRun) (queryPath, sanityPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", eris.Wrap(err, "pipeline: create output dir")
	}

	base := artifactSlug(run.Input)

	queryPath = filepath.Join(dir, base+"_queries.txt")
	content := strings.Join(run.Queries, "\n") + "\n"
	if err := os.WriteFile(queryPath, []byte(content), 0o644); err != nil {
		return "", "", eris.Wrap(err, "pipeline: write query file")
	}

	sanityPath = filepath.Join(dir, base+"_sanity.json")
	records, err := json.MarshalIndent(run.Records(), "", "  ")
	if err != nil {
		return "", "", eris.Wrap(err, "pipeline: marshal sanity records")
	}
	if err := os.WriteFile(sanityPath, append(records, '\n'), 0o644); err != nil {
		return "", "", eris.Wrap(err, "pipeline: write sanity file")
	}

	return queryPath, sanityPath, nil
}

// artifactSlug builds a filesystem-safe stem like "salem_or_food_bank".
func artifactSlug(input model.RunInput) string {
	parts := []string{input.City, input.State, string(input.Category)}
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		var b strings.Builder
		for _, r := range p {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		parts[i] = b.String()
	}
	slug := strings.Trim(strings.Join(parts, "_"), "_")
	if slug == "" {
		slug = "run"
	}
	return slug
}
