package service

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	// SignatureHeader - подпись тела запроса в hex
	SignatureHeader = "X-Signature"

	hmacSignaturePrefix = "sha256="
)

// HMACVerifier - HMAC-SHA256 по сырому телу с общим секретом провайдера
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(headers http.Header, body []byte) error {
	sig, err := signatureFromHeader(headers)
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return fmt.Errorf("%w: hmac mismatch", ErrSignature)
	}
	return nil
}

// Sign - подпись тела, используется в тестах и при отладке интеграций
func (v *HMACVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Ed25519Verifier - подпись открытым ключом провайдера
type Ed25519Verifier struct {
	publicKey ed25519.PublicKey
}

// NewEd25519Verifier принимает открытый ключ в hex
func NewEd25519Verifier(publicKeyHex string) (*Ed25519Verifier, error) {
	key, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ed25519 public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key size: %d", len(key))
	}
	return &Ed25519Verifier{publicKey: key}, nil
}

func (v *Ed25519Verifier) Verify(headers http.Header, body []byte) error {
	sig, err := signatureFromHeader(headers)
	if err != nil {
		return err
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(v.publicKey, body, sig) {
		return fmt.Errorf("%w: ed25519 verification failed", ErrSignature)
	}
	return nil
}

func signatureFromHeader(headers http.Header) ([]byte, error) {
	raw := strings.TrimSpace(headers.Get(SignatureHeader))
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrSignature, SignatureHeader)
	}
	raw = strings.TrimPrefix(raw, hmacSignaturePrefix)

	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not hex", ErrSignature)
	}
	return sig, nil
}

// BuildVerifiers собирает верификаторы по провайдерам из конфигурации.
// Провайдер с открытым ключом проверяется ed25519, иначе HMAC.
func BuildVerifiers(hmacSecrets, publicKeys map[string]string) (map[string]SignatureVerifier, error) {
	verifiers := make(map[string]SignatureVerifier, len(hmacSecrets)+len(publicKeys))
	for name, secret := range hmacSecrets {
		if secret == "" {
			continue
		}
		verifiers[strings.ToLower(name)] = NewHMACVerifier(secret)
	}
	for name, key := range publicKeys {
		v, err := NewEd25519Verifier(key)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		verifiers[strings.ToLower(name)] = v
	}
	return verifiers, nil
}
