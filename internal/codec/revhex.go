package codec

import "encoding/hex"

// decodeReversedHex reverses the payload, subtracts 1 from every character
// code, strips anything that is not a hex digit and decodes the remaining
// byte pairs. This is the dominant format for the chain-walk provider.
func decodeReversedHex(raw string) (string, bool) {
	shifted := make([]byte, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		c := raw[i] - 1
		if isHexDigit(c) {
			shifted = append(shifted, c)
		}
	}
	if len(shifted) < 2 {
		return "", false
	}
	if len(shifted)%2 != 0 {
		shifted = shifted[:len(shifted)-1]
	}
	decoded, err := hex.DecodeString(string(shifted))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
