package cryptoutil

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	answerKeyInfo = "messagestack/survey-answers/v1"
	aiDataKeyInfo = "messagestack/ai-records/v1"
	digestKeyInfo = "messagestack/digests/v1"
)

// Keyring holds the process-wide key material. It is built once at
// startup and only read afterwards.
type Keyring struct {
	signingKey []byte
	answerKey  []byte
	aiDataKey  []byte
	digestKey  []byte
}

// NewKeyring derives the symmetric keys from masterSecret with HKDF-SHA256.
// The token signing key is taken verbatim from signingSecret.
func NewKeyring(masterSecret, signingSecret string) (*Keyring, error) {
	masterSecret = strings.TrimSpace(masterSecret)
	signingSecret = strings.TrimSpace(signingSecret)
	if masterSecret == "" {
		return nil, errors.New("encryption secret is required")
	}
	if signingSecret == "" {
		return nil, errors.New("signing secret is required")
	}

	answerKey, err := deriveKey(masterSecret, answerKeyInfo)
	if err != nil {
		return nil, err
	}
	aiDataKey, err := deriveKey(masterSecret, aiDataKeyInfo)
	if err != nil {
		return nil, err
	}
	digestKey, err := deriveKey(masterSecret, digestKeyInfo)
	if err != nil {
		return nil, err
	}

	return &Keyring{
		signingKey: []byte(signingSecret),
		answerKey:  answerKey,
		aiDataKey:  aiDataKey,
		digestKey:  digestKey,
	}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// SigningKey returns the HMAC key for session tokens.
func (k *Keyring) SigningKey() []byte {
	return k.signingKey
}

// AnswerCipher returns the cipher for survey answers.
func (k *Keyring) AnswerCipher() (*Cipher, error) {
	return NewCipher(k.answerKey)
}

// AIDataCipher returns the cipher for anonymized AI record payloads.
func (k *Keyring) AIDataCipher() (*Cipher, error) {
	return NewCipher(k.aiDataKey)
}

// Digester returns the keyed hasher for IP addresses and owner digests.
func (k *Keyring) Digester() *Digester {
	return &Digester{key: k.digestKey}
}
