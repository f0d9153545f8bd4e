// Package codec implements the decode algorithms for the obfuscation
// formats found in embed payloads. Every decoder is a pure string
// transform; the registry tries them in a fixed priority order and the
// first output containing a recognizable stream marker wins.
package codec

import "strings"

// Decoder is one obfuscation format strategy.
type Decoder struct {
	// Name identifies the format in traces and logs.
	Name string
	// Match reports whether the raw payload looks like this format.
	// A nil Match means the decoder is tried unconditionally.
	Match func(raw string) bool
	// Decode attempts the transform. ok is false when the payload does
	// not decode cleanly under this format.
	Decode func(raw string) (string, bool)
}

// Registry holds the ordered decoder list. New formats are appended as
// data; callers never branch on format names.
type Registry struct {
	decoders []Decoder
}

// NewRegistry returns the registry with today's known formats in priority
// order. The reversed-hex format is the dominant one for the chain-walk
// provider and is tried first among the generic formats.
func NewRegistry() *Registry {
	return &Registry{decoders: []Decoder{
		{Name: "rot3", Match: matchRot3, Decode: decodeRot3},
		{Name: "reversed-hex", Decode: decodeReversedHex},
		{Name: "reversed-base64-shift", Decode: decodeReversedBase64},
		{Name: "custom-alphabet", Decode: decodeCustomAlphabet},
		{Name: "custom-alphabet-pepper", Decode: decodeCustomAlphabetPepper},
	}}
}

// Register appends a decoder. Lowest priority; existing order is fixed.
func (r *Registry) Register(d Decoder) {
	r.decoders = append(r.decoders, d)
}

// DetectAndDecode tries every decoder in priority order and returns the
// first plaintext that carries a stream marker, along with the format that
// produced it. It never panics on malformed input.
func (r *Registry) DetectAndDecode(raw string) (plaintext, format string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	for _, d := range r.decoders {
		if d.Match != nil && !d.Match(raw) {
			continue
		}
		out, decOK := d.Decode(raw)
		if decOK && HasStreamMarker(out) {
			return out, d.Name, true
		}
	}
	return "", "", false
}

var mediaExtensions = []string{".m3u8", ".mp4"}

// HasStreamMarker reports whether a decoded string plausibly contains a
// playable URL: a URL scheme plus a known media-file extension.
func HasStreamMarker(s string) bool {
	if !strings.Contains(s, "http") {
		return false
	}
	for _, ext := range mediaExtensions {
		if strings.Contains(s, ext) {
			return true
		}
	}
	return false
}
