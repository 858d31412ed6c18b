package serviceauth

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shadowtrace/discovery-platform/internal/httputil"
	"github.com/shadowtrace/discovery-platform/internal/platform/cache"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
)

var (
	errNotConfigured      = errors.New("serviceauth: validator has no public key configured")
	errWrongSigningMethod = errors.New("serviceauth: token is not RS256-signed")
	errTokenInvalid       = errors.New("serviceauth: token failed validation")
	errClaimsType         = errors.New("serviceauth: unexpected claims type")
	errMissingServiceID   = errors.New("serviceauth: token is missing its service_id claim")
	errWrongIssuer        = errors.New("serviceauth: token has an unrecognized issuer")
	errSubjectMismatch    = errors.New("serviceauth: token subject does not match its service_id claim")
)

// validationCacheSize bounds the validator's cache at a fixed number of
// distinct tokens regardless of how many distinct callers present them,
// the eviction bound the teacher's hand-rolled map+mutex cache lacked.
const validationCacheSize = 4096

// validationCacheTTL is how long a validated token is trusted without
// re-verifying its signature. Tokens whose own expiry is sooner than this
// are not cached at all, since caching them would outlive the token itself.
const validationCacheTTL = 2 * time.Minute

// Validator authenticates inbound ServiceTokens against a single RSA public
// key, the worker process's counterpart to the API's ServiceTokenGenerator.
type Validator struct {
	publicKey       *rsa.PublicKey
	allowedServices map[string]bool
	cache           *cache.BoundedTTLCache[string, *ServiceClaims]
	log             *logging.Logger
}

// Config configures a Validator.
type Config struct {
	PublicKey *rsa.PublicKey
	// AllowedServices restricts which ServiceID claims are accepted. A nil
	// or empty slice allows any service identity the key can verify.
	AllowedServices []string
	Log             *logging.Logger
}

// NewValidator builds a Validator from cfg.
func NewValidator(cfg Config) (*Validator, error) {
	allowed := make(map[string]bool, len(cfg.AllowedServices))
	for _, svc := range cfg.AllowedServices {
		allowed[svc] = true
	}
	boundedCache, err := cache.NewBoundedTTLCache[string, *ServiceClaims](validationCacheSize, validationCacheTTL)
	if err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logging.NewFromEnv("serviceauth")
	}
	return &Validator{publicKey: cfg.PublicKey, allowedServices: allowed, cache: boundedCache, log: log}, nil
}

// Middleware authenticates every request carrying ServiceTokenHeader,
// rejecting requests missing it, signed by an unrecognized key, or minted
// for a service identity not in AllowedServices. On success it attaches the
// verified ServiceID to the request's context via WithServiceID.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(ServiceTokenHeader)
		if token == "" {
			httputil.WriteErrorWithCode(w, http.StatusUnauthorized, "SERVICE_AUTH_REQUIRED", "missing service token")
			return
		}

		claims, err := v.validate(token)
		if err != nil {
			v.log.WithContext(r.Context()).WithFields(map[string]interface{}{"error": err.Error()}).Warn("service token validation failed")
			httputil.WriteErrorWithCode(w, http.StatusUnauthorized, "SERVICE_AUTH_INVALID", "invalid service token")
			return
		}

		if len(v.allowedServices) > 0 && !v.allowedServices[claims.ServiceID] {
			v.log.WithContext(r.Context()).WithFields(map[string]interface{}{"service_id": claims.ServiceID}).Warn("service not in allowed list")
			httputil.WriteErrorWithCode(w, http.StatusForbidden, "SERVICE_NOT_AUTHORIZED", "service not authorized")
			return
		}

		ctx := WithServiceID(r.Context(), claims.ServiceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Validator) validate(tokenString string) (*ServiceClaims, error) {
	if v.publicKey == nil {
		return nil, errNotConfigured
	}

	if cached, ok := v.cache.Get(tokenString); ok {
		return cached, nil
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errWrongSigningMethod
		}
		return v.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errTokenInvalid
	}

	claims, ok := parsed.Claims.(*ServiceClaims)
	if !ok {
		return nil, errClaimsType
	}
	if claims.ServiceID == "" {
		return nil, errMissingServiceID
	}
	if claims.Issuer != Issuer {
		return nil, errWrongIssuer
	}
	if claims.Subject != "" && claims.Subject != claims.ServiceID {
		return nil, errSubjectMismatch
	}

	// Skip caching a token whose remaining lifetime is shorter than the
	// cache's own TTL; otherwise it would be trusted past its own expiry.
	if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) >= validationCacheTTL {
		v.cache.Set(tokenString, claims)
	}

	return claims, nil
}

// InvalidateCache drops every cached validation result, used when the
// public key is rotated.
func (v *Validator) InvalidateCache() {
	v.cache.Purge()
}
