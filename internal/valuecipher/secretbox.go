package valuecipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrTokenTampered is returned when a token fails authentication.
var ErrTokenTampered = errors.New("value token failed authentication")

// Secretbox seals values with NaCl secretbox (XSalsa20-Poly1305).
// Tokens are base64(nonce || sealed decimal string).
type Secretbox struct {
	key [keySize]byte
}

// NewSecretbox creates a cipher from a 32-byte key.
func NewSecretbox(key []byte) (*Secretbox, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secretbox key must be %d bytes, got %d", keySize, len(key))
	}
	s := &Secretbox{}
	copy(s.key[:], key)
	return s, nil
}

func (s *Secretbox) Encrypt(value decimal.Decimal) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(value.String()), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Secretbox) Decrypt(token string) (decimal.Decimal, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode value token: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return decimal.Zero, ErrTokenTampered
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return decimal.Zero, ErrTokenTampered
	}

	d, err := decimal.NewFromString(string(plain))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid sealed value: %w", err)
	}
	return d, nil
}
