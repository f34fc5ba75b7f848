package broker

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateTOTP derives a 6-digit RFC 6238 time-based one-time password
// from seed using SHA1 and a 30-second step, matching the broker's
// session-login requirement. seed may be base32 (optionally with
// padding stripped) or a 32-character hex string; hex is normalised to
// the bytes it encodes before HMAC, base32 is decoded directly.
func GenerateTOTP(seed string, at time.Time) (string, error) {
	key, err := decodeSeed(seed)
	if err != nil {
		return "", fmt.Errorf("decode totp seed: %w", err)
	}

	counter := uint64(at.Unix() / 30)
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1_000_000), nil
}

func decodeSeed(seed string) ([]byte, error) {
	seed = strings.TrimSpace(seed)

	if isHex32(seed) {
		return hex.DecodeString(seed)
	}

	padded := seed
	if n := len(padded) % 8; n != 0 {
		padded += strings.Repeat("=", 8-n)
	}
	return base32.StdEncoding.DecodeString(strings.ToUpper(padded))
}

func isHex32(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
