package breakdown

import (
	"strconv"
	"strings"
)

// Slugify normalizes a label into a lowercase token: letters and digits
// are kept, every other run of characters collapses to a single hyphen,
// leading and trailing hyphens are trimmed.
func Slugify(label string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(label) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// slugSet hands out unique slugs within one build, resolving collisions
// with -2, -3, ... suffixes.
type slugSet struct {
	taken map[string]bool
}

func newSlugSet() *slugSet {
	return &slugSet{taken: make(map[string]bool)}
}

func (s *slugSet) claim(label string) string {
	base := Slugify(label)
	if base == "" {
		base = "task"
	}
	slug := base
	for n := 2; s.taken[slug]; n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	s.taken[slug] = true
	return slug
}
