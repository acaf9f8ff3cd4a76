package models

import "strings"

// Durable-tier key layout.
const (
	PrefixBang  = "#bang#"
	KeySymbol   = "#symbol#"
	KeyProvider = "#provider#"
	KeyInactive = "#inactive#"
	KeySchema   = "#schema#"

	// PrefixLegacyEngine marks search-engine keys written by old releases.
	PrefixLegacyEngine = "#engine#"
)

// BangKey returns the durable key of a custom bang.
func BangKey(token string) string {
	return PrefixBang + strings.ToLower(token)
}

// IsBangKey reports whether key holds a custom bang.
func IsBangKey(key string) bool {
	return strings.HasPrefix(key, PrefixBang)
}

// TokenFromKey strips the bang prefix.
func TokenFromKey(key string) string {
	return strings.TrimPrefix(key, PrefixBang)
}

// IsSettingKey reports whether key is one of the reserved setting keys.
func IsSettingKey(key string) bool {
	switch key {
	case KeySymbol, KeyProvider, KeyInactive, KeySchema:
		return true
	}
	return false
}
