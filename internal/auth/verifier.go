package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "go-chat-relay"

var (
	// ErrMalformed means the credential could not be parsed as a token at all.
	ErrMalformed = errors.New("malformed credential")
	// ErrInvalid means the token parsed but failed signature, expiry or claim checks.
	ErrInvalid = errors.New("invalid credential")
)

// Principal is the identity carried by a verified token.
type Principal struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Claims is the JWT payload we sign and accept.
type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier signs and verifies HS256 tokens. It holds no mutable state and
// is safe for concurrent use.
type Verifier struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for p that expires after the configured TTL.
func (v *Verifier) Issue(p Principal) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       p.ID,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	})
	return token.SignedString(v.secret)
}

// Verify parses credential and returns the principal it names. Every entry
// point (REST header, websocket handshake) must go through here.
func (v *Verifier) Verify(credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, ErrMalformed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Principal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid || claims.ID <= 0 {
		return Principal{}, ErrInvalid
	}

	return Principal{ID: claims.ID, Username: claims.Username}, nil
}
