// Package statecodec seals opaque session values into tamper-evident tokens.
//
// Tokens are AES-256-GCM ciphertexts keyed by SHA-256 of a shared password and
// serialized as lowercase hex: nonce (12 bytes), sealed body, tag (16 bytes),
// with no separators. The layout is shared with other relay implementations
// and must stay bit-exact.
package statecodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	nonceSize = 12
	tagSize   = 16

	nonceHexLen = nonceSize * 2
	tagHexLen   = tagSize * 2
)

// DefaultValidity is the lifetime EncodeState callers use when they have no
// better opinion.
const DefaultValidity = 5 * time.Minute

var (
	// ErrInput reports a missing plaintext, ciphertext or password.
	ErrInput = errors.New("plaintext and password are required")

	// ErrAuthentication reports a ciphertext that failed to parse or verify.
	ErrAuthentication = errors.New("ciphertext failed authentication")

	// ErrInvalidState reports a state token that could not be decrypted or decoded.
	ErrInvalidState = errors.New("state is invalid")

	// ErrExpiredState reports an authentic state token past its expiry.
	ErrExpiredState = errors.New("state is expired")
)

// payload is the JSON document sealed inside a state token. Expires is epoch
// milliseconds.
type payload struct {
	Value   string `json:"value"`
	Expires *int64 `json:"expires"`
}

// Encrypt seals plaintext with a key derived from password.
func Encrypt(plaintext, password string) (string, error) {
	if plaintext == "" || password == "" {
		return "", ErrInput
	}

	aead, err := newAEAD(password)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends body||tag.
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	body := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + hex.EncodeToString(body) + hex.EncodeToString(tag), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext, password string) (string, error) {
	if ciphertext == "" || password == "" {
		return "", ErrInput
	}
	if len(ciphertext) < nonceHexLen+tagHexLen {
		return "", ErrAuthentication
	}

	nonce, err := hex.DecodeString(ciphertext[:nonceHexLen])
	if err != nil {
		return "", ErrAuthentication
	}
	tag, err := hex.DecodeString(ciphertext[len(ciphertext)-tagHexLen:])
	if err != nil {
		return "", ErrAuthentication
	}
	body, err := hex.DecodeString(ciphertext[nonceHexLen : len(ciphertext)-tagHexLen])
	if err != nil {
		return "", ErrAuthentication
	}

	aead, err := newAEAD(password)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, append(body, tag...), nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// EncodeState seals value together with its absolute expiry.
func EncodeState(value, password string, expiresAt time.Time) (string, error) {
	expires := expiresAt.UnixMilli()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload{Value: value, Expires: &expires}); err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return Encrypt(string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), password)
}

// DecodeState opens a state token and returns its value. It fails with
// ErrInvalidState when the token does not authenticate or decode and with
// ErrExpiredState when now is past the sealed expiry.
func DecodeState(state, password string, now time.Time) (string, error) {
	plaintext, err := Decrypt(state, password)
	if err != nil {
		return "", ErrInvalidState
	}

	var p payload
	if err := json.Unmarshal([]byte(plaintext), &p); err != nil || p.Expires == nil {
		return "", ErrInvalidState
	}

	if now.UnixMilli() > *p.Expires {
		return "", ErrExpiredState
	}
	return p.Value, nil
}

func newAEAD(password string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(password))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Codec binds a password and clock so callers do not thread them through
// every call.
type Codec struct {
	Password string
	Clock    func() time.Time
}

// New returns a Codec for password using the wall clock.
func New(password string) *Codec {
	return &Codec{Password: password}
}

// Encode seals value with an expiry ttl from now.
func (c *Codec) Encode(value string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultValidity
	}
	return EncodeState(value, c.Password, c.now().Add(ttl))
}

// Decode opens state using the codec's password and clock.
func (c *Codec) Decode(state string) (string, error) {
	return DecodeState(state, c.Password, c.now())
}

func (c *Codec) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}
