package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CredentialKind identifies which secret variant a credential envelope holds.
type CredentialKind string

const (
	// KindSessionCookies marks a credential holding a browser session cookie bundle.
	KindSessionCookies CredentialKind = "session_cookies"
	// KindOAuthTokens marks a credential holding an OAuth1.0a token/secret pair.
	KindOAuthTokens CredentialKind = "oauth_tokens"
)

// Envelope is the encrypted-at-rest representation of a credential's secret
// payload. The authentication tag is kept separate from the ciphertext so the
// persistence layer can store them in distinct columns.
type Envelope struct {
	KeyEpoch   int
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Credential binds encrypted secret material to one managed account.
// ExpiresAt is stored unencrypted alongside the envelope so validity checks
// never require a decrypt; a zero ExpiresAt means the credential does not
// expire. Plaintext is never persisted.
type Credential struct {
	AccountID string
	Kind      CredentialKind
	Envelope  Envelope
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Secret is the decrypted payload of a credential. It is a sealed variant:
// the only implementations are SessionCookieBundle and OAuthTokenPair, and
// header construction switches exhaustively over them.
type Secret interface {
	CredentialKind() CredentialKind
}

// CookiePair is a single named session cookie.
type CookiePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionCookieBundle is an ordered set of session cookies captured from a
// platform login. Order is preserved so the serialized Cookie header matches
// what the platform issued.
type SessionCookieBundle struct {
	Cookies []CookiePair `json:"cookies"`
}

// CredentialKind implements Secret.
func (SessionCookieBundle) CredentialKind() CredentialKind { return KindSessionCookies }

// CookieHeader serializes the bundle into a Cookie header value: "k1=v1; k2=v2".
func (b SessionCookieBundle) CookieHeader() string {
	parts := make([]string, 0, len(b.Cookies))
	for _, c := range b.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// OAuthTokenPair is an OAuth1.0a access token and its secret.
type OAuthTokenPair struct {
	Token       string `json:"token"`
	TokenSecret string `json:"token_secret"`
}

// CredentialKind implements Secret.
func (OAuthTokenPair) CredentialKind() CredentialKind { return KindOAuthTokens }

// EncodeSecret serializes a secret payload for encryption.
func EncodeSecret(s Secret) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s secret: %w", s.CredentialKind(), err)
	}
	return data, nil
}

// DecodeSecret deserializes a decrypted payload into the variant named by kind.
func DecodeSecret(kind CredentialKind, data []byte) (Secret, error) {
	switch kind {
	case KindSessionCookies:
		var b SessionCookieBundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode session cookie bundle: %w", err)
		}
		return b, nil
	case KindOAuthTokens:
		var p OAuthTokenPair
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode oauth token pair: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown credential kind %q", kind)
	}
}
