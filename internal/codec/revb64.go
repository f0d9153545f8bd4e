package codec

import (
	"encoding/base64"
	"strings"
)

// Leading marker some payloads carry before the reversed base64 body.
const b64PaddingMarker = "#0"

// Shift candidates observed in the wild. The set is empirically
// reverse-engineered and may drift; extend the slice, not the logic.
var b64ShiftCandidates = []byte{1, 2, 3, 4, 5, 6, 7}

// decodeReversedBase64 strips the optional padding marker, reverses the
// payload, normalizes URL-safe characters, base64-decodes and then tries
// subtracting each shift candidate from every decoded character code.
// Success requires the result to carry a stream marker.
func decodeReversedBase64(raw string) (string, bool) {
	raw = strings.TrimPrefix(raw, b64PaddingMarker)

	reversed := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		reversed[i] = raw[len(raw)-1-i]
	}

	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(string(reversed))
	if pad := len(normalized) % 4; pad != 0 {
		normalized += strings.Repeat("=", 4-pad)
	}

	decoded, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return "", false
	}

	for _, shift := range b64ShiftCandidates {
		shifted := make([]byte, len(decoded))
		for i, c := range decoded {
			shifted[i] = c - shift
		}
		if out := string(shifted); HasStreamMarker(out) {
			return out, true
		}
	}
	return "", false
}
