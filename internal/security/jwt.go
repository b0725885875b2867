package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"residentportal/internal/domain"
)

// ErrMalformedToken marks a credential that could not be parsed at all, as
// opposed to one that parsed but failed signature or expiry checks.
var ErrMalformedToken = errors.New("malformed token")

const TokenTypeRefresh = "refresh"

type Claims struct {
	UserID      uint     `json:"userId"`
	Email       string   `json:"email,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	TokenType   string   `json:"tokenType,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies the portal's bearer credentials. Both token
// classes share one HS512 secret; refresh tokens carry no authorities so
// privileges are always re-derived from the user record at rotation time.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	cache      VerifyCacheStore
	cacheTTL   time.Duration
}

func NewTokenCodec(secret, issuer string, accessTTL, refreshTTL time.Duration, cache VerifyCacheStore, cacheTTL time.Duration) *TokenCodec {
	if cache == nil {
		cache = NewNoopVerifyCacheStore()
	}
	return &TokenCodec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) IssueAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      user.ID,
		Email:       emailOf(user),
		Authorities: user.Authorities(),
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

func (c *TokenCodec) IssueRefreshToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			// Refresh values are persisted by exact value; the jti keeps
			// two issuances within the same second distinct.
			ID: uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

// Verify reports whether raw carries a valid signature and is not expired.
// Positive results are memoized in the verify cache for a short window that
// never reaches past the token's own expiry.
func (c *TokenCodec) Verify(ctx context.Context, raw string) bool {
	if hit, err := c.cache.Get(ctx, raw); err == nil && hit {
		return true
	}
	claims, err := c.parse(raw)
	if err != nil {
		return false
	}
	if ttl := c.memoTTL(claims); ttl > 0 {
		_ = c.cache.Set(ctx, raw, ttl)
	}
	return true
}

// VerifyAccess parses and validates an access token in one step.
func (c *TokenCodec) VerifyAccess(raw string) (*Claims, error) {
	claims, err := c.parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.TokenType == TokenTypeRefresh {
		return nil, errors.New("refresh token used as access token")
	}
	return claims, nil
}

func (c *TokenCodec) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS512 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (c *TokenCodec) memoTTL(claims *Claims) time.Duration {
	ttl := c.cacheTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// ParseClaims decodes the claim set without verifying the signature. Callers
// that need trust must go through Verify or VerifyAccess first.
func (c *TokenCodec) ParseClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (c *TokenCodec) Subject(raw string) (string, error) {
	claims, err := c.ParseClaims(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (c *TokenCodec) UserID(raw string) (uint, error) {
	claims, err := c.ParseClaims(raw)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (c *TokenCodec) Expiry(raw string) (time.Time, error) {
	claims, err := c.ParseClaims(raw)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, ErrMalformedToken
	}
	return claims.ExpiresAt.Time, nil
}

func emailOf(user *domain.User) string {
	if user.Email == nil {
		return ""
	}
	return *user.Email
}
