package chipin

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SignatureHeader carries the base64 RSA signature of the raw request body.
const SignatureHeader = "X-Signature"

var (
	// ErrSignatureMissing indicates the request carried no signature header.
	ErrSignatureMissing = errors.New("chipin: signature missing")
	// ErrSignatureInvalid indicates the signature did not match the body.
	ErrSignatureInvalid = errors.New("chipin: signature invalid")
	// ErrPublicKeyMissing indicates no verification key is available.
	ErrPublicKeyMissing = errors.New("chipin: public key missing")
)

// ParsePublicKey decodes a PEM encoded RSA public key.
func ParsePublicKey(pemKey string) (*rsa.PublicKey, error) {
	trimmed := strings.TrimSpace(pemKey)
	if trimmed == "" {
		return nil, ErrPublicKeyMissing
	}
	// keys pasted into env vars often keep literal \n sequences
	trimmed = strings.ReplaceAll(trimmed, `\n`, "\n")
	key, err := jwk.ParseKey([]byte(trimmed), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("chipin: parse public key: %w", err)
	}
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("chipin: public key is not RSA: %w", err)
	}
	return &pub, nil
}

// Verify checks an RSA PKCS#1 v1.5 SHA-256 signature over body.
func Verify(body []byte, signature, pemKey string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	pub, err := ParsePublicKey(pemKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
