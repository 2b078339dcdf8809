// Package sessiontoken mints short-lived HS256 tokens that let one
// successful bot verification cover the parallel requests of a single
// document. There is no server-side record and no revocation: a token is
// valid purely by signature and its embedded iat/exp.
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	MinSecretLength  = 32
	DefaultLifetime  = 5 * time.Minute
	DefaultClockSkew = 30 * time.Second
)

// verification reasons
const (
	ReasonMalformed        = "malformed"
	ReasonInvalidSignature = "invalid-signature"
	ReasonExpired          = "expired"
	ReasonIssuedInFuture   = "issued-in-future"
	ReasonLifetimeExceeded = "lifetime-exceeded"
	ReasonWeakSecret       = "weak-secret"
	ReasonInvalid          = "invalid"
)

var ErrWeakSecret = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)

// carries only iat and exp
type Claims struct {
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Verification struct {
	Valid     bool
	Reason    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Issuer struct {
	lifetime time.Duration
	skew     time.Duration
	now      func() time.Time
}

type Option func(*Issuer)

func WithLifetime(d time.Duration) Option {
	return func(i *Issuer) {
		i.lifetime = d
	}
}

func WithClockSkew(d time.Duration) Option {
	return func(i *Issuer) {
		i.skew = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		lifetime: DefaultLifetime,
		skew:     DefaultClockSkew,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// signs a fresh token valid for the issuer's lifetime
func (i *Issuer) Mint(secret string) (*Token, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	issuedAt := jwt.NewNumericDate(i.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(i.lifetime))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Token{
		Value:     value,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// checks the MAC first, then iat/exp against now with the skew tolerance
func (i *Issuer) Verify(tokenString, secret string) Verification {
	if len(secret) < MinSecretLength {
		return Verification{Reason: ReasonWeakSecret}
	}

	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(i.skew),
		jwt.WithTimeFunc(i.now),
	)

	if err != nil {
		return Verification{Reason: reasonFor(err)}
	}

	if claims.IssuedAt == nil {
		return Verification{Reason: ReasonMalformed}
	}

	issuedAt := claims.IssuedAt.Time
	expiresAt := claims.ExpiresAt.Time

	// a token minted with a longer lifetime can't have come from this issuer
	if expiresAt.Sub(issuedAt) > i.lifetime+i.skew {
		return Verification{Reason: ReasonLifetimeExceeded, IssuedAt: issuedAt, ExpiresAt: expiresAt}
	}

	return Verification{
		Valid:     true,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonIssuedInFuture
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonMalformed
	default:
		return ReasonInvalid
	}
}
