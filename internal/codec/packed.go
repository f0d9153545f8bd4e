package codec

import (
	"regexp"
	"strconv"
	"strings"
)

// packedRe captures the argument list of the well-known
// eval(function(p,a,c,k,e,d){...}) wrapper: payload, radix, token count and
// the pipe-separated word list.
var packedRe = regexp.MustCompile(`}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'([^']*)'\s*\.split\(\s*'\|'\s*\)`)

// IsPacked reports whether a script body contains a packed payload.
func IsPacked(script string) bool {
	return strings.Contains(script, "eval(function(p,a,c,k,e,d)") && packedRe.MatchString(script)
}

// Unpack reverses the packer's base-N token substitution and returns the
// original script text. This is a pure data transform; no part of the
// payload is ever executed.
func Unpack(script string) (string, bool) {
	m := packedRe.FindStringSubmatch(script)
	if m == nil {
		return "", false
	}

	payload := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
	radix, err := strconv.Atoi(m[2])
	if err != nil || radix < 2 || radix > 62 {
		return "", false
	}
	count, err := strconv.Atoi(m[3])
	if err != nil || count < 0 {
		return "", false
	}
	words := strings.Split(m[4], "|")
	if len(words) < count {
		return "", false
	}

	for i := count - 1; i >= 0; i-- {
		if words[i] == "" {
			continue
		}
		token := encodeBaseN(i, radix)
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(token) + `\b`)
		if err != nil {
			continue
		}
		payload = re.ReplaceAllString(payload, words[i])
	}
	return payload, true
}

const baseNDigits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// encodeBaseN renders n the way the packer numbers its tokens: digits, then
// lowercase, then uppercase.
func encodeBaseN(n, radix int) string {
	if n == 0 {
		return string(baseNDigits[0])
	}
	var b []byte
	for n > 0 {
		b = append([]byte{baseNDigits[n%radix]}, b...)
		n /= radix
	}
	return string(b)
}
