package ci

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	derrors "github.com/suntomi/deplo/pkg/errors"
)

// cachedToken holds a minted installation token and its expiry, re-minted
// lazily once expired (spec.md §4.5 "cache token + expires_at; re-mint when
// expired").
type cachedToken struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *cachedToken) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

func (c *cachedToken) set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// mintAppJWT builds the short-lived JWT a GitHub App uses to authenticate
// as itself (not as an installation): {iat: now-60, exp: now+600, iss: appID},
// RS256-signed with the app's PEM private key.
func mintAppJWT(appID string, pemKey []byte) (string, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return "", derrors.New(derrors.ErrCodeCIProvider, "invalid PEM private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return "", derrors.Wrap(derrors.ErrCodeCIProvider, "failed to parse app private key", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return "", derrors.New(derrors.ErrCodeCIProvider, "app private key is not RSA")
		}
		key = rsaKey
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(600 * time.Second).Unix(),
		"iss": appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", derrors.Wrap(derrors.ErrCodeCIProvider, "failed to sign app JWT", err)
	}
	return signed, nil
}
