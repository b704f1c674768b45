package vsftp

import (
	"crypto/aes"
	"crypto/cipher"
	cryptorand "crypto/rand"
	"crypto/sha1"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// salt matches the fixed, public salt the teacher's server derives its
// block cipher key with (server/main.go's pbkdf2.Key(pass, []byte(SALT), ...)):
// the pre-shared key itself is the secret, not the salt.
const salt = "vsftp"

// keySize is AES-256.
const keySize = 32

// DeriveKey stretches pass into a fixed-size AES key via PBKDF2-HMAC-SHA1,
// the same construction server/main.go uses for its block cipher.
func DeriveKey(pass []byte) []byte {
	return pbkdf2.Key(pass, []byte(salt), 4096, keySize, sha1.New)
}

// Seal encrypts plaintext under key with AES-GCM, returning nonce||ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: new aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: new gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := cryptorand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "vsftp: read nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: new aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: new gcm")
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("vsftp: sealed body shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "vsftp: gcm open")
	}
	return plaintext, nil
}
