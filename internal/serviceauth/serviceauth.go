// Package serviceauth mints and validates the RS256 ServiceTokens the API
// process uses to call the discovery worker process's internal HTTP surface
// (§11.bis): triggering a discovery run over an internal contract that
// neither carries nor trusts a user's session token. Generalized from the teacher's infrastructure/serviceauth package,
// which served a single shared pool of internal services, to this
// platform's two fixed service identities, "api" and "worker".
package serviceauth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

const (
	// ServiceTokenHeader carries the signed RS256 ServiceToken.
	ServiceTokenHeader = "X-Service-Token"

	// ServiceIDHeader is an informational header; the trusted service
	// identity always comes from the token's Subject claim, never this
	// header alone.
	ServiceIDHeader = "X-Service-ID"

	// Issuer is the fixed issuer every ServiceToken in this platform carries.
	Issuer = "shadowtrace-discovery-platform"

	// DefaultServiceTokenExpiry bounds how long a minted token is accepted.
	DefaultServiceTokenExpiry = 5 * time.Minute
)

type contextKey int

const serviceIDKey contextKey = iota

// WithServiceID attaches the authenticated caller's service identity to ctx.
func WithServiceID(ctx context.Context, serviceID string) context.Context {
	return context.WithValue(ctx, serviceIDKey, serviceID)
}

// GetServiceID returns the service identity set by WithServiceID, or "".
func GetServiceID(ctx context.Context) string {
	v, _ := ctx.Value(serviceIDKey).(string)
	return v
}

// ServiceClaims is the JWT claim set a ServiceToken carries. Subject and the
// custom ServiceID field are kept equal; validators check both record the
// same value so that the claim can't be reused from a Subject rewrite alone.
type ServiceClaims struct {
	ServiceID string `json:"service_id"`
	jwt.RegisteredClaims
}

// ServiceTokenGenerator mints ServiceTokens for a single caller identity
// (e.g. "worker").
type ServiceTokenGenerator struct {
	privateKey *rsa.PrivateKey
	serviceID  string
	expiry     time.Duration
}

// NewServiceTokenGenerator builds a generator that signs as serviceID using
// privateKey, minting tokens valid for expiry (DefaultServiceTokenExpiry if
// zero).
func NewServiceTokenGenerator(privateKey *rsa.PrivateKey, serviceID string, expiry time.Duration) *ServiceTokenGenerator {
	if expiry <= 0 {
		expiry = DefaultServiceTokenExpiry
	}
	return &ServiceTokenGenerator{privateKey: privateKey, serviceID: serviceID, expiry: expiry}
}

// GenerateToken mints a fresh, signed ServiceToken.
func (g *ServiceTokenGenerator) GenerateToken() (string, error) {
	if g.privateKey == nil {
		return "", errors.New("serviceauth: no RSA private key configured")
	}
	now := time.Now().UTC()
	claims := ServiceClaims{
		ServiceID: g.serviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   g.serviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(g.privateKey)
}

// ServiceTokenRoundTripper injects a fresh ServiceToken, plus the caller's
// trace id and user id when present on the outgoing request's context, into
// every request it forwards.
type ServiceTokenRoundTripper struct {
	base      http.RoundTripper
	generator *ServiceTokenGenerator
}

// NewServiceTokenRoundTripper wraps base (http.DefaultTransport if nil) with
// ServiceToken injection.
func NewServiceTokenRoundTripper(base http.RoundTripper, generator *ServiceTokenGenerator) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ServiceTokenRoundTripper{base: base, generator: generator}
}

// RoundTrip implements http.RoundTripper.
func (rt *ServiceTokenRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := rt.generator.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("serviceauth: mint token: %w", err)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set(ServiceTokenHeader, token)
	clone.Header.Set(ServiceIDHeader, rt.generator.serviceID)
	if traceID := logging.GetTraceID(req.Context()); traceID != "" {
		clone.Header.Set("X-Trace-ID", traceID)
	}
	if userID := logging.GetUserID(req.Context()); userID != "" {
		clone.Header.Set("X-User-ID", userID)
	}
	return rt.base.RoundTrip(clone)
}

// ParseRSAPublicKeyFromPEM parses an RSA public key from PEM bytes. Accepted
// PEM block types are PUBLIC KEY (PKIX), RSA PUBLIC KEY (PKCS#1), and
// CERTIFICATE (the key is lifted from the embedded certificate).
func ParseRSAPublicKeyFromPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("serviceauth: no PEM block found")
	}

	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("serviceauth: parse certificate: %w", err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("serviceauth: certificate does not hold an RSA public key")
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("serviceauth: parse PKIX public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("serviceauth: PEM does not hold an RSA public key")
		}
		return rsaPub, nil
	}
}

// ParseRSAPrivateKeyFromPEM parses an RSA private key from PEM bytes.
// Accepted PEM block types are RSA PRIVATE KEY (PKCS#1) and PRIVATE KEY
// (PKCS#8).
func ParseRSAPrivateKeyFromPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("serviceauth: no PEM block found")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("serviceauth: parse PKCS8 private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("serviceauth: PEM does not hold an RSA private key")
	}
	return rsaKey, nil
}
