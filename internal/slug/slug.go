// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation for tags created on
// demand and for copied posts.
package slug

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// separators turns whitespace and underscores into hyphens.
	separators = regexp.MustCompile(`[\s_]+`)
	// disallowed matches anything that isn't a lowercase letter, digit or hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// maxAttempts bounds the numeric suffixes tried by Unique.
const maxAttempts = 100

// Generate creates a URL-friendly slug from the given string.
// Example: "Breaking News_2026" → "breaking-news-2026"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = separators.ReplaceAllString(result, "-")
	result = disallowed.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// Unique returns the slug of s, or the first "<slug>-N" (N from 2) that
// taken reports as free. An empty slug falls back to fallback.
func Unique(s, fallback string, taken func(candidate string) (bool, error)) (string, error) {
	base := Generate(s)
	if base == "" {
		base = fallback
	}

	candidate := base
	for n := 2; n <= maxAttempts+1; n++ {
		used, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxAttempts)
}
