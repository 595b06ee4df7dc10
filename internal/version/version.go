// Package version reports the orchestra release embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// UserAgent identifies orchestra in outgoing API requests.
func UserAgent() string {
	return "orchestra/" + Get()
}
