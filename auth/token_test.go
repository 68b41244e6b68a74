package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"study-relay/domain"
	"study-relay/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "a_test_secret_that_is_long_enough"

func sign(t *testing.T, key string, method jwt.SigningMethod, claims Claims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsFor(userID string, expiresIn time.Duration) Claims {
	return Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifier_ValidateToken(t *testing.T) {
	verifier := NewVerifier(secret)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "Valid token", token: sign(t, secret, jwt.SigningMethodHS256, claimsFor("alice", time.Hour))},
		{name: "Expired token", token: sign(t, secret, jwt.SigningMethodHS256, claimsFor("alice", -time.Hour)), wantErr: true},
		{name: "Wrong secret", token: sign(t, "another_secret_entirely", jwt.SigningMethodHS256, claimsFor("alice", time.Hour)), wantErr: true},
		{name: "Other algorithm", token: sign(t, secret, jwt.SigningMethodHS512, claimsFor("alice", time.Hour)), wantErr: true},
		{name: "No user", token: sign(t, secret, jwt.SigningMethodHS256, claimsFor("", time.Hour)), wantErr: true},
		{name: "Garbage", token: "not.a.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := verifier.ValidateToken(tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "alice", claims.UserID)
		})
	}
}

func TestVerifier_Subject_Fallback(t *testing.T) {
	req := require.New(t)
	claims := claimsFor("", time.Hour)
	claims.Subject = "bob"

	got, err := NewVerifier(secret).ValidateToken(sign(t, secret, jwt.SigningMethodHS256, claims))

	req.NoError(err)
	req.Equal("bob", got.UserID)
}

func TestVerifier_Authenticate(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(secret)
	token := sign(t, secret, jwt.SigningMethodHS256, claimsFor("alice", time.Hour))

	// From the query string
	userID, err := verifier.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	req.NoError(err)
	req.Equal(domain.UserID("alice"), userID)

	// From the Authorization header
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	userID, err = verifier.Authenticate(r)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), userID)

	// Missing
	_, err = verifier.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?user_id=alice", nil))
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestVerifier_DevMode(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier("")
	req.True(verifier.DevMode())

	userID, err := verifier.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?user_id=carol", nil))
	req.NoError(err)
	req.Equal(domain.UserID("carol"), userID)

	_, err = verifier.Authenticate(httptest.NewRequest(http.MethodGet, "/ws", nil))
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	req := require.New(t)
	var seen domain.UserID
	handler := Middleware(slog.New(slog.DiscardHandler), NewVerifier(secret),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = UserIDFromContext(r.Context())
		}))

	// Given no credentials
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/rooms/1/state", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Empty(seen)

	// Given a valid bearer token
	r := httptest.NewRequest(http.MethodPut, "/rooms/1/state", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.SigningMethodHS256, claimsFor("platform", time.Hour)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(domain.UserID("platform"), seen)
}
