package ratelimit

import "strings"

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// SanitizeKeySegment percent-escapes the key delimiter and the escape
// character itself, so distinct identifiers always map to distinct segments
// and an identifier such as "a1:global" cannot address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return keyEscaper.Replace(s)
}

// Key builds the bucket key {prefix}:{scope}:{identifier}.
func Key(prefix string, scope Scope, identifier string) string {
	if identifier == "" {
		identifier = UnknownIdentifier
	}
	return SanitizeKeySegment(prefix) + ":" + string(scope) + ":" + SanitizeKeySegment(identifier)
}
