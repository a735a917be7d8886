// Package encryption protects observation coordinates at rest with
// AES-256-GCM. Ciphertexts are stored as a JSON bundle of base64 fields so
// rows stay portable across database backends.
package encryption

import (
	"crypto/aes"
	pkgcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/adilrumy05/SmartPlant-Backend/internal/errors"
)

const (
	keySize = 32
	tagSize = 16
)

// Bundle is the serialized form of one encrypted value.
type Bundle struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ct"`
	Tag        string `json:"tag"`
}

// Cipher encrypts and decrypts small payloads with a fixed 256-bit key.
type Cipher struct {
	aead pkgcipher.AEAD
}

// New builds a cipher from a base64-encoded 256-bit key, as configured in
// security.datakey.
func New(base64Key string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errors.Newf("encryption: decoding key: %w", err).
			Component("encryption").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(key) != keySize {
		return nil, errors.Newf("encryption: key must be %d bytes, got %d", keySize, len(key)).
			Component("encryption").
			Category(errors.CategoryConfiguration).
			Build()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Newf("encryption: initializing cipher: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	aead, err := pkgcipher.NewGCM(block)
	if err != nil {
		return nil, errors.Newf("encryption: initializing GCM: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	return &Cipher{aead: aead}, nil
}

// EncryptLocation seals a coordinate pair into a JSON bundle string.
func (c *Cipher) EncryptLocation(latitude, longitude float64) (string, error) {
	plaintext := fmt.Sprintf("%f,%f", latitude, longitude)

	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", errors.Newf("encryption: generating nonce: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	bundle := Bundle{
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}
	encoded, err := json.Marshal(bundle)
	if err != nil {
		return "", errors.Newf("encryption: encoding bundle: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	return string(encoded), nil
}

// DecryptLocation opens a bundle produced by EncryptLocation.
func (c *Cipher) DecryptLocation(bundleJSON string) (latitude, longitude float64, err error) {
	var bundle Bundle
	if err := json.Unmarshal([]byte(bundleJSON), &bundle); err != nil {
		return 0, 0, errors.Newf("encryption: parsing bundle: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}

	iv, err := base64.StdEncoding.DecodeString(bundle.IV)
	if err == nil && len(iv) != c.aead.NonceSize() {
		err = fmt.Errorf("nonce is %d bytes, want %d", len(iv), c.aead.NonceSize())
	}
	if err != nil {
		return 0, 0, errors.Newf("encryption: decoding nonce: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	ct, err := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	if err != nil {
		return 0, 0, errors.Newf("encryption: decoding ciphertext: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	tag, err := base64.StdEncoding.DecodeString(bundle.Tag)
	if err != nil {
		return 0, 0, errors.Newf("encryption: decoding tag: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}

	plaintext, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return 0, 0, errors.Newf("encryption: opening bundle: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}

	if _, err := fmt.Sscanf(string(plaintext), "%f,%f", &latitude, &longitude); err != nil {
		return 0, 0, errors.Newf("encryption: parsing coordinates: %w", err).
			Component("encryption").
			Category(errors.CategoryEncryption).
			Build()
	}
	return latitude, longitude, nil
}
