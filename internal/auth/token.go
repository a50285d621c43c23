package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/webshop-accounts/internal/config"
	"github.com/iliyamo/webshop-accounts/internal/model"
)

var (
	// ErrTokenExpired means the token was well formed and correctly signed
	// but its exp lies in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers every other verification failure: bad
	// signature, wrong algorithm, issuer or audience, missing claims.
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims is the signed payload of a session token.
type Claims struct {
	ID          uint64       `json:"id"`
	Email       string       `json:"email"`
	Verified    bool         `json:"verified"`
	Status      model.Status `json:"status"`
	ForceLogout uint32       `json:"force_logout"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies HS256 session tokens.  It holds no
// mutable state after construction, so Verify is safe to call
// concurrently on every request.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewTokenService validates the token settings in cfg.  A missing secret
// is a configuration error and should stop the process.
func NewTokenService(cfg *config.Config) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is not configured")
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("invalid jwt ttl %s", cfg.JWTTTL)
	}
	if cfg.JWTLeeway < 0 {
		return nil, fmt.Errorf("invalid jwt leeway %s", cfg.JWTLeeway)
	}
	return &TokenService{
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.JWTTTL,
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		leeway:   cfg.JWTLeeway,
		now:      time.Now,
	}, nil
}

// Issue signs a token for a, snapshotting its force-logout counter.
// It returns the token and its expiry.
func (s *TokenService) Issue(a *model.Account) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		ID:          a.ID,
		Email:       a.Email,
		Verified:    a.Verified,
		Status:      a.Status,
		ForceLogout: a.ForceLogout,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry and
// returns the claims.  A token is still valid at the instant of its exp.  Failures are ErrTokenExpired or ErrTokenMalformed.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	// jwt rejects at now == exp; the extra nanosecond makes exp inclusive
	// so a token fails only once now > exp + leeway.
	opts = append(opts, jwt.WithLeeway(s.leeway+time.Nanosecond))
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	claims := &Claims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !tok.Valid || claims.ID == 0 || claims.IssuedAt == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
