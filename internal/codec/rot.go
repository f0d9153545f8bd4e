package codec

import "strings"

const rotOffset = 3

// rot3SchemeMarker is "https" with every letter shifted back by the
// rotation offset, which is how the provider's payloads begin.
const rot3SchemeMarker = "eqqmp"

func matchRot3(raw string) bool {
	return strings.HasPrefix(raw, rot3SchemeMarker)
}

// decodeRot3 shifts alphabetic characters forward by the fixed offset.
// Non-letters pass through unchanged.
func decodeRot3(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteRune('a' + (c-'a'+rotOffset)%26)
		case c >= 'A' && c <= 'Z':
			b.WriteRune('A' + (c-'A'+rotOffset)%26)
		default:
			b.WriteRune(c)
		}
	}
	return b.String(), true
}
