package common

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// MD5Prefix returns the first n hex characters of the MD5 digest of input.
// It is used for host-facing reference tokens, never for integrity checks.
func MD5Prefix(input string, n int) string {
	sum := md5.Sum([]byte(input))
	out := hex.EncodeToString(sum[:])
	if n > 0 && n < len(out) {
		return out[:n]
	}
	return out
}
