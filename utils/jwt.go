package utils

import (
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/p2einferno/inferno-checkin/config"
)

// Claims carries the identity-provider subject (a Privy DID such as "did:privy:abc").
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token claims")

	pubKeyOnce sync.Once
	pubKey     *ecdsa.PublicKey
	pubKeyErr  error
)

// GenerateToken signs an HS256 token for subject. Used by local tooling and tests;
// production tokens are issued by the identity provider.
func GenerateToken(subject string, duration time.Duration) (string, error) {
	cfg := config.Get()
	if cfg.JWTSecret == "" {
		return "", errors.New("JWT_SECRET not configured")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a token and returns its claims. ES256 tokens are verified with
// the configured public key, HS256 tokens with the shared secret.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodECDSA:
			return verificationKey(cfg.JWTPublicKeyPEM)
		case *jwt.SigningMethodHMAC:
			if cfg.JWTSecret == "" {
				return nil, errors.New("hmac tokens not accepted")
			}
			return []byte(cfg.JWTSecret), nil
		default:
			return nil, errors.New("unexpected signing method")
		}
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func verificationKey(pem string) (*ecdsa.PublicKey, error) {
	if pem == "" {
		return nil, errors.New("ecdsa tokens not accepted")
	}
	pubKeyOnce.Do(func() {
		pubKey, pubKeyErr = jwt.ParseECPublicKeyFromPEM([]byte(strings.ReplaceAll(pem, `\n`, "\n")))
	})
	return pubKey, pubKeyErr
}
