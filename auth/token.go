// Package auth verifies the identity of incoming connections.
// Tokens are issued elsewhere; the relay only checks them.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"study-relay/domain"
	"study-relay/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims defines the structure of the data stored inside the JWT.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
// Without a secret it runs in development mode and trusts the user_id query parameter.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

func (v *Verifier) DevMode() bool {
	return len(v.secret) == 0
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, jwt.ErrSignatureInvalid)
	}
	if claims.UserID == "" {
		claims.UserID, _ = claims.GetSubject()
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token carries no user", errors.ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate resolves the user behind a request, from the token query
// parameter or from an Authorization Bearer header.
func (v *Verifier) Authenticate(r *http.Request) (domain.UserID, error) {
	if v.DevMode() {
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			return domain.UserID(userID), nil
		}
		return "", fmt.Errorf("%w: user_id is missing", errors.ErrUnauthorized)
	}

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return "", fmt.Errorf("%w: authorization token is missing", errors.ErrUnauthorized)
		}
		tokenStr = strings.TrimPrefix(header, "Bearer ")
	}

	claims, err := v.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}
	return domain.UserID(claims.UserID), nil
}
