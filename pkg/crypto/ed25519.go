package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// InstructionSigner signs Backpack-style REST instructions with an ED25519 key
type InstructionSigner struct {
	apiKey string
	key    ed25519.PrivateKey
}

// NewInstructionSigner accepts a base64 seed (32 bytes) or full private key (64 bytes)
func NewInstructionSigner(apiKey, secretB64 string) (*InstructionSigner, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretB64))
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("secret must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	if apiKey == "" {
		apiKey = base64.StdEncoding.EncodeToString(key.Public().(ed25519.PublicKey))
	}
	return &InstructionSigner{apiKey: apiKey, key: key}, nil
}

// APIKey is the base64 public key sent as X-API-Key
func (s *InstructionSigner) APIKey() string { return s.apiKey }

// PublicKey returns the verifying key
func (s *InstructionSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign returns the base64 signature over the canonical instruction payload
func (s *InstructionSigner) Sign(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	msg := InstructionPayload(instruction, params, timestampMs, windowMs)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(msg)))
}

// InstructionPayload renders instruction=<name>&k=v...&timestamp=<ms>&window=<ms> with keys sorted
func InstructionPayload(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("instruction=")
	b.WriteString(instruction)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&timestamp=")
	b.WriteString(strconv.FormatInt(timestampMs, 10))
	b.WriteString("&window=")
	b.WriteString(strconv.FormatInt(windowMs, 10))
	return b.String()
}

// VerifyInstruction checks a base64 signature produced by Sign
func VerifyInstruction(pub ed25519.PublicKey, instruction string, params map[string]string, timestampMs, windowMs int64, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, []byte(InstructionPayload(instruction, params, timestampMs, windowMs)), sig)
}
