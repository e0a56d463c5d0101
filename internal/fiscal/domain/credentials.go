package domain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"gorm.io/datatypes"
)

type encryptedPayload struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// DeriveKey turns the configured secret into an AES-256 key. An empty
// secret yields a nil key, which makes every encrypt/decrypt fail with
// ErrEncryptionKeyMissing.
func DeriveKey(secret string) []byte {
	if secret == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// EncryptCredentials seals the secret material for storage.
func EncryptCredentials(key []byte, creds Credentials) (datatypes.JSON, error) {
	if len(key) == 0 {
		return nil, ErrEncryptionKeyMissing
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, ErrInvalidConfig
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, payload, nil)
	encoded := encryptedPayload{
		Version:    1,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(out), nil
}

// DecryptCredentials opens a sealed credentials column.
func DecryptCredentials(key []byte, sealed datatypes.JSON) (Credentials, error) {
	var creds Credentials
	if len(key) == 0 {
		return creds, ErrEncryptionKeyMissing
	}

	var encoded encryptedPayload
	if err := json.Unmarshal(sealed, &encoded); err != nil {
		return creds, ErrInvalidConfig
	}

	nonce, err := base64.RawStdEncoding.DecodeString(encoded.Nonce)
	if err != nil {
		return creds, ErrInvalidConfig
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(encoded.Ciphertext)
	if err != nil {
		return creds, ErrInvalidConfig
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return creds, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return creds, err
	}

	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return creds, ErrInvalidConfig
	}
	if err := json.Unmarshal(payload, &creds); err != nil {
		return creds, ErrInvalidConfig
	}
	return creds, nil
}
