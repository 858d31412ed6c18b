package serviceauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func generateTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestContextHelpers(t *testing.T) {
	ctx := WithServiceID(context.Background(), "worker")
	require.Equal(t, "worker", GetServiceID(ctx))
	require.Equal(t, "", GetServiceID(context.Background()))
}

func TestServiceTokenGeneratorDefaultExpiry(t *testing.T) {
	key := generateTestRSAKey(t)
	gen := NewServiceTokenGenerator(key, "worker", 0)
	require.Equal(t, DefaultServiceTokenExpiry, gen.expiry)
}

func TestServiceTokenGeneratorMintsValidToken(t *testing.T) {
	key := generateTestRSAKey(t)
	gen := NewServiceTokenGenerator(key, "worker", time.Hour)

	token, err := gen.GenerateToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := jwt.ParseWithClaims(token, &ServiceClaims{}, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*ServiceClaims)
	require.Equal(t, "worker", claims.ServiceID)
	require.Equal(t, "worker", claims.Subject)
	require.Equal(t, Issuer, claims.Issuer)
}

func TestServiceTokenRoundTripperInjectsHeaders(t *testing.T) {
	key := generateTestRSAKey(t)
	gen := NewServiceTokenGenerator(key, "worker", time.Hour)

	var capturedToken, capturedUserID string
	base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		capturedToken = r.Header.Get(ServiceTokenHeader)
		capturedUserID = r.Header.Get("X-User-ID")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Header: make(http.Header)}, nil
	})

	client := &http.Client{Transport: NewServiceTokenRoundTripper(base, gen)}
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.NotEmpty(t, capturedToken)
	require.Empty(t, capturedUserID)
}

func TestParseRSAPublicKeyFromPKIXPEM(t *testing.T) {
	key := generateTestRSAKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	pub, err := ParseRSAPublicKeyFromPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))
}

func TestParseRSAPrivateKeyFromPKCS8PEM(t *testing.T) {
	key := generateTestRSAKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := ParseRSAPrivateKeyFromPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, parsed.Equal(key))
}

func TestParseRSAPrivateKeyFromPKCS1PEM(t *testing.T) {
	key := generateTestRSAKey(t)
	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

	parsed, err := ParseRSAPrivateKeyFromPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, parsed.Equal(key))
}
