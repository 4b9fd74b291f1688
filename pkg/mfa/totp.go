package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"time"
)

// RFC 6238 time-based one-time passwords over HMAC-SHA1, 6 digits,
// 30 second steps, one step of clock drift tolerated in each direction.

const (
	totpDigits     = 6
	totpStep       = 30 * time.Second
	totpDriftSteps = 1
)

// NewTotpSecret generates a 20-byte shared secret, base32 encoded without
// padding.
func NewTotpSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// TotpCode computes the code for the given secret at time t.
func TotpCode(secret string, t time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", err
	}
	counter := uint64(t.Unix()) / uint64(totpStep.Seconds())

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", totpDigits, code%mod), nil
}

// totpMatches checks the response against the secret, accepting one step
// of drift either side of now.
func totpMatches(secret string, response string, now time.Time) bool {
	for i := -totpDriftSteps; i <= totpDriftSteps; i++ {
		code, err := TotpCode(secret, now.Add(time.Duration(i)*totpStep))
		if err != nil {
			return false
		}
		if constantTimeEquals(code, response) {
			return true
		}
	}
	return false
}
