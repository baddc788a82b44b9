package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Nityam-7/TELSTAR/id"
)

const (
	// DefaultTokenTTL is the session lifetime handed out on login.
	DefaultTokenTTL = 24 * time.Hour

	// tokenIssuerName is the iss claim every token carries.
	tokenIssuerName = "telstar"
)

// ErrInvalidToken covers malformed, expired and forged tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Token is an issued session credential.
type Token struct {
	Value      string        `json:"token"`
	CustomerID id.CustomerID `json:"customer_id"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(customerID id.CustomerID, now time.Time) (*Token, error)
	Verify(token string, now time.Time) (id.CustomerID, error)
}

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 tokens with a shared secret.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTIssuer returns an issuer. A zero ttl selects DefaultTokenTTL.
func NewJWTIssuer(secret []byte, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth: jwt secret must be at least 16 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIssuer{secret: secret, ttl: ttl}, nil
}

// NewEphemeralJWTIssuer signs with a random secret. Tokens do not survive a
// process restart.
func NewEphemeralJWTIssuer(ttl time.Duration) *JWTIssuer {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("auth: read random secret: %v", err))
	}
	issuer, _ := NewJWTIssuer(secret, ttl) //nolint:errcheck // secret length is fixed above
	return issuer
}

func (j *JWTIssuer) TTL() time.Duration { return j.ttl }

func (j *JWTIssuer) Issue(customerID id.CustomerID, now time.Time) (*Token, error) {
	expires := now.Add(j.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuerName,
			Subject:   customerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}

	return &Token{Value: signed, CustomerID: customerID, ExpiresAt: expires}, nil
}

func (j *JWTIssuer) Verify(token string, now time.Time) (id.CustomerID, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			return j.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	customerID, err := id.ParseCustomerID(claims.Subject)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return customerID, nil
}
