package codec

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Shuffled alphabet the provider swapped in for the standard base64 one.
// Empirically recovered; treat as data, it drifts with provider updates.
const customAlphabet = "NOPQRSTUVWXYZabcdefghijklmABCDEFGHIJKLMnopqrstuvwxyz0123456789-_"

// Pepper variant: payloads carry '#' where the alphabet expects 'v'.
const (
	pepperMarker      = "#"
	pepperReplacement = "v"
)

var customEncoding = base64.NewEncoding(customAlphabet).WithPadding(base64.NoPadding)

// decodeCustomAlphabet decodes a payload written in the provider's shuffled
// base64 alphabet and reassembles the byte sequence as UTF-8.
func decodeCustomAlphabet(raw string) (string, bool) {
	trimmed := strings.TrimRight(raw, "=")
	decoded, err := customEncoding.DecodeString(trimmed)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// decodeCustomAlphabetPepper substitutes the marker character first, then
// decodes with the same shuffled alphabet.
func decodeCustomAlphabetPepper(raw string) (string, bool) {
	if !strings.Contains(raw, pepperMarker) {
		return "", false
	}
	return decodeCustomAlphabet(strings.ReplaceAll(raw, pepperMarker, pepperReplacement))
}
