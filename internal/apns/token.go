package apns

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenValidity is how long a signed provider token is reused before a fresh
// one is generated. APNs rejects tokens issued more than an hour ago, so we
// stay well under that.
const TokenValidity = 50 * time.Minute

var ErrBadPrivateKey = errors.New("apns: private key is not an ECDSA P-256 key")

// TokenSource generates and caches the ES256 provider token presented to
// APNs as the bearer credential.
//
// The cache is deliberately not single-flighted: concurrent callers that
// observe an expired entry each sign a fresh token and the last write wins.
// Every token produced that way is valid upstream, so the race is harmless;
// the mutex only keeps the cached pair itself consistent.
type TokenSource struct {
	keyID      string
	teamID     string
	privateKey *ecdsa.PrivateKey

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewTokenSource parses a PKCS#8 PEM private key (the contents of the .p8
// file) and returns a ready source. It fails fast on bad key material.
func NewTokenSource(keyID, teamID, privateKeyPEM string) (*TokenSource, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("apns: private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apns: failed to parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, ErrBadPrivateKey
	}
	return &TokenSource{
		keyID:      keyID,
		teamID:     teamID,
		privateKey: key,
	}, nil
}

// Token returns the cached provider token while it is inside its validity
// window. force bypasses the cache unconditionally.
func (ts *TokenSource) Token(force bool) (string, error) {
	if !force {
		ts.mu.RLock()
		token, expiry := ts.token, ts.expiry
		ts.mu.RUnlock()
		if token != "" && time.Now().Before(expiry) {
			return token, nil
		}
	}
	return ts.generate()
}

// Clear discards the cached token so the next Token call regenerates. Called
// when APNs reports the credential itself as expired.
func (ts *TokenSource) Clear() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiry = time.Time{}
	ts.mu.Unlock()
}

func (ts *TokenSource) generate() (string, error) {
	header, err := json.Marshal(map[string]string{
		"alg": "ES256",
		"kid": ts.keyID,
	})
	if err != nil {
		return "", err
	}
	claims, err := json.Marshal(struct {
		Iss string `json:"iss"`
		Iat int64  `json:"iat"`
	}{
		Iss: ts.teamID,
		Iat: time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(claims)

	sum := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, ts.privateKey, sum[:])
	if err != nil {
		return "", fmt.Errorf("apns: token signing failed: %w", err)
	}

	// JWT ES256 wants the raw P1363 signature: r and s as fixed 32-byte
	// big-endian values, not the ASN.1 form.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	token := signingInput + "." + enc.EncodeToString(sig)

	ts.mu.Lock()
	ts.token = token
	ts.expiry = time.Now().Add(TokenValidity)
	ts.mu.Unlock()
	return token, nil
}
