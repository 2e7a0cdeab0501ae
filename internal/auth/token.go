package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/estatehub/estatehub/internal/platform/httpx"
)

var (
	// ErrTokenInvalid covers malformed, mis-signed or foreign tokens.
	ErrTokenInvalid = fmt.Errorf("auth: token invalid: %w", httpx.ErrUnauthorized)
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = fmt.Errorf("auth: token expired: %w", httpx.ErrUnauthorized)
)

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 access tokens. Roles are not
// embedded; they are resolved per request so revocations apply immediately.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService. An empty issuer disables the
// issuer check.
func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for the user.
func (s *TokenService) Issue(userID, email string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates the token and returns its claims.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}
	out := Claims{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
