package research

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	citationRe = regexp.MustCompile(`\[(\d+)\]`)
	sourceRe   = regexp.MustCompile(`(?m)^\s*\[(\d+)\]\s+\S`)
)

// ValidateCitations checks the structural contract for research-grounded
// artifacts: the body must end with a "Sources:" section, and every numbered
// citation in the body must resolve to an entry in that section. This is a
// mechanical check, not a judgment of claim quality.
func ValidateCitations(body string) error {
	idx := strings.LastIndex(body, "Sources:")
	if idx < 0 {
		if citationRe.MatchString(body) {
			return fmt.Errorf("research: artifact cites sources but has no Sources section")
		}
		return fmt.Errorf("research: artifact is missing a Sources section")
	}
	text, sources := body[:idx], body[idx:]

	listed := make(map[string]bool)
	for _, m := range sourceRe.FindAllStringSubmatch(sources, -1) {
		listed[m[1]] = true
	}
	if len(listed) == 0 {
		return fmt.Errorf("research: Sources section lists no entries")
	}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		if !listed[m[1]] {
			return fmt.Errorf("research: citation [%s] has no matching source entry", m[1])
		}
	}
	return nil
}
