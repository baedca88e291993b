// Package version compares template version strings.
//
// Versions are compared as semantic versions when both sides parse
// ("1.2.0", "v1.2.0", "2.0.0-rc.1"); otherwise they fall back to plain
// lexical order so legacy tags like "2024-05-01" still sort.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Normalize ensures the version string has a "v" prefix for semver.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// IsSemver reports whether v parses as a semantic version.
func IsSemver(v string) bool {
	return semver.IsValid(Normalize(v))
}

// Compare returns -1, 0 or +1 as a is older than, equal to, or newer than b.
func Compare(a, b string) int {
	na, nb := Normalize(a), Normalize(b)
	if semver.IsValid(na) && semver.IsValid(nb) {
		return semver.Compare(na, nb)
	}
	return strings.Compare(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Equal reports whether a and b name the same version.
func Equal(a, b string) bool {
	return Compare(a, b) == 0
}

// Newer reports whether candidate is strictly newer than current.
func Newer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}
