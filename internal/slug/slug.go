// Package slug derives URL-safe identifiers from display names.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	invalidChars = regexp.MustCompile(`[^\w\s-]`)
	separatorRun = regexp.MustCompile(`[\s_-]+`)
)

// Make normalizes a display name into a slug: lowercased, trimmed, stripped
// of anything that is not a word character, whitespace or hyphen, with runs
// of whitespace/underscores/hyphens collapsed to a single hyphen.
func Make(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = invalidChars.ReplaceAllString(s, "")
	s = separatorRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Taken probes whether a candidate slug already exists within some scope
// (a company's workspaces, the global tag namespace).
type Taken func(ctx context.Context, slug string) (bool, error)

// Unique resolves name to a slug that is free within the scope probed by
// taken, appending an incrementing numeric suffix until there is no
// collision.
func Unique(ctx context.Context, name string, taken Taken) (string, error) {
	base := Make(name)
	candidate := base
	for counter := 1; ; counter++ {
		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}
