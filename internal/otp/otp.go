// Package otp holds the secret-code primitives: random code generation,
// keyed hashing, and fingerprint derivation for idempotency keys.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// MinCodeDigits and MaxCodeDigits bound the configurable code length.
	MinCodeDigits = 4
	MaxCodeDigits = 10
)

var errInvalidDigits = errors.New("invalid otp digits")

// NewCode returns a random numeric code of the given length. Each digit is
// drawn independently from crypto/rand, so the code is uniform over 10^digits.
func NewCode(digits int) (string, error) {
	if digits < MinCodeDigits || digits > MaxCodeDigits {
		return "", errInvalidDigits
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode computes a keyed BLAKE2b-256 digest of the code. The key comes
// from settings so deployments can rotate it; it must be at most 64 bytes.
// The plaintext code must never be stored; only this digest is retained.
func HashCode(key []byte, code string) ([32]byte, error) {
	var out [32]byte

	h, err := blake2b.New256(key)
	if err != nil {
		return out, err
	}
	h.Write([]byte(code))
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Equal compares two digests in constant time.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Fingerprint derives a stable idempotency key from the given parts. Parts
// are length-prefix separated so ("ab","c") and ("a","bc") cannot collide.
func Fingerprint(parts ...string) string {
	h, _ := blake2b.New256(nil)
	var sep [1]byte
	for _, p := range parts {
		h.Write([]byte(p))
		sep[0] = byte(len(p))
		h.Write(sep[:])
	}
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
