package serviceauth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type rsaKeyPair struct {
	private *rsa.PrivateKey
}

func newRSAKeyPair(t *testing.T) *rsaKeyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &rsaKeyPair{private: key}
}

func newValidator(t *testing.T, key *rsaKeyPair, allowed ...string) *Validator {
	t.Helper()
	v, err := NewValidator(Config{PublicKey: &key.private.PublicKey, AllowedServices: allowed})
	require.NoError(t, err)
	return v
}

func TestValidatorAcceptsTokenFromItsOwnGenerator(t *testing.T) {
	kp := newRSAKeyPair(t)
	gen := NewServiceTokenGenerator(kp.private, "worker", time.Hour)
	token, err := gen.GenerateToken()
	require.NoError(t, err)

	v := newValidator(t, kp)

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs", nil)
	req.Header.Set(ServiceTokenHeader, token)
	rec := httptest.NewRecorder()

	var sawServiceID string
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawServiceID = GetServiceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "worker", sawServiceID)
}

func TestValidatorRejectsMissingToken(t *testing.T) {
	kp := newRSAKeyPair(t)
	v := newValidator(t, kp)

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs", nil)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatorRejectsDisallowedService(t *testing.T) {
	kp := newRSAKeyPair(t)
	gen := NewServiceTokenGenerator(kp.private, "worker", time.Hour)
	token, err := gen.GenerateToken()
	require.NoError(t, err)

	v := newValidator(t, kp, "api")

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs", nil)
	req.Header.Set(ServiceTokenHeader, token)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidatorRejectsWrongSigningKey(t *testing.T) {
	owner := newRSAKeyPair(t)
	impostor := newRSAKeyPair(t)
	gen := NewServiceTokenGenerator(impostor.private, "worker", time.Hour)
	token, err := gen.GenerateToken()
	require.NoError(t, err)

	v := newValidator(t, owner)

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs", nil)
	req.Header.Set(ServiceTokenHeader, token)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatorRejectsWrongIssuer(t *testing.T) {
	kp := newRSAKeyPair(t)
	now := time.Now().UTC()
	claims := ServiceClaims{
		ServiceID: "worker",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "some-other-issuer",
			Subject:   "worker",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(kp.private)
	require.NoError(t, err)

	v := newValidator(t, kp)

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/discovery-runs", nil)
	req.Header.Set(ServiceTokenHeader, token)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatorInvalidateCacheDropsCachedResult(t *testing.T) {
	kp := newRSAKeyPair(t)
	gen := NewServiceTokenGenerator(kp.private, "worker", time.Hour)
	token, err := gen.GenerateToken()
	require.NoError(t, err)

	v := newValidator(t, kp)
	_, err = v.validate(token)
	require.NoError(t, err)
	require.Equal(t, 1, v.cache.Len())

	v.InvalidateCache()
	require.Equal(t, 0, v.cache.Len())
}
