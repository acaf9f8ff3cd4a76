// Package migrate upgrades versioned configuration shapes (backup documents
// and the durable-tier layout) to the current schema, one explicit step per
// version transition.
package migrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/bangd/internal/apperr"
)

// Version is a backup or storage schema version.
type Version string

// Known versions, oldest first.
const (
	V1_0 Version = "1.0" // flat url/urlEncodeQuery bangs
	V1_1 Version = "1.1" // adds settings.bangSymbol
	V1_2 Version = "1.2" // bangs carry a targets list
	V1_3 Version = "1.3" // adds settings.bangProvider

	Current = V1_3
)

// ParseVersion maps a version marker onto a known version. Markers below
// 1.0 are treated as 1.0; markers newer than Current are rejected.
func ParseVersion(raw string) (Version, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", fmt.Errorf("migrate: version %q: %w", raw, apperr.ErrMalformedBackup)
	}
	switch {
	case f < 1.1:
		return V1_0, nil
	case f < 1.2:
		return V1_1, nil
	case f < 1.3:
		return V1_2, nil
	case f == 1.3:
		return V1_3, nil
	}
	return "", fmt.Errorf("migrate: version %s is newer than %s: %w", raw, Current, apperr.ErrMalformedBackup)
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	a, _ := strconv.ParseFloat(string(v), 64)
	b, _ := strconv.ParseFloat(string(o), 64)
	return a >= b
}
