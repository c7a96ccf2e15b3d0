package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru"

	"github.com/campushub/studyhub/config"
)

var (
	// ErrNoCredential is returned when no token was presented at all.
	ErrNoCredential = errors.New("authentication required")
	// ErrInvalidCredential is returned on signature or expiry failure.
	ErrInvalidCredential = errors.New("invalid or expired credential")
)

const verifiedCacheSize = 1024

// Verifier issues and verifies the signed bearer tokens shared by the REST
// middleware and the websocket handshake. Verification is pure: there is no
// refresh or rotation, expiry simply fails closed. Because polling clients
// re-present the same token every few seconds, successfully parsed claims
// are kept in an LRU cache; cache hits still fail closed once expired.
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
	verified *lru.Cache
}

type cachedClaim struct {
	userId    uint
	expiresAt time.Time
}

func NewVerifier(cfg *config.Config) (*Verifier, error) {
	if cfg.AuthConfig.Secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	cache, err := lru.New(verifiedCacheSize)
	if err != nil {
		return nil, err
	}
	ttl := cfg.AuthConfig.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Verifier{
		secret:   []byte(cfg.AuthConfig.Secret),
		tokenTTL: ttl,
		verified: cache,
	}, nil
}

// Issue creates a signed token carrying the user id as subject.
func (v *Verifier) Issue(userId uint) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userId), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify validates a bearer token and extracts the embedded user id.
func (v *Verifier) Verify(token string) (uint, error) {
	if token == "" {
		return 0, ErrNoCredential
	}
	if e, ok := v.verified.Get(token); ok {
		c := e.(cachedClaim)
		if time.Now().Before(c.expiresAt) {
			return c.userId, nil
		}
		v.verified.Remove(token)
		return 0, ErrInvalidCredential
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ExpiresAt == nil {
		return 0, ErrInvalidCredential
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidCredential
	}
	v.verified.Add(token, cachedClaim{userId: uint(id), expiresAt: claims.ExpiresAt.Time})
	return uint(id), nil
}
