package app

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

var errKeyEncoding = errors.New("key must be hex or base64 encoded")

// DecodeKey decodes a hex or base64 (standard, URL, padded or raw) key.
// Generated keys are hex, so hex wins when a value is valid in both.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(v); err == nil {
			return decoded, nil
		}
	}
	return nil, errKeyEncoding
}
