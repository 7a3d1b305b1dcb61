package model

import (
	"fmt"
	"regexp"
	"strings"
)

var reNoIdent = regexp.MustCompile(`\W+`)

// Slugify derives a stable field identifier from an english label:
// lowercased, non-word runs collapsed to single underscores.
func Slugify(label string) string {
	slug := strings.ToLower(label)
	slug = reNoIdent.ReplaceAllLiteralString(slug, " ")
	return strings.Join(strings.Fields(slug), "_")
}

// UniqueSlug disambiguates slug against already-taken ones by appending
// a numeric suffix, the way repeated labels on one form are kept apart.
func UniqueSlug(slug string, taken []string) string {
	n := 0
	for _, prev := range taken {
		if prev == slug || strings.HasPrefix(prev, slug+"__") {
			n++
		}
	}
	if n > 0 {
		return fmt.Sprintf("%s__%d", slug, n)
	}
	return slug
}
