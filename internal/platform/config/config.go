// Package config loads the platform's process-wide configuration snapshot
// once at startup. There is no hot reload: a Config value, once returned by
// Load, is immutable for the life of the process.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full set of recognized options from SPEC_FULL §6/§10,
// decoded from environment variables via struct tags, the same pattern the
// teacher applies ad hoc with GetEnv/GetEnvBool/GetEnvInt, generalized to one
// typed struct now that the option set has grown past a handful of keys.
type Config struct {
	Env      string `env:"APP_ENV,default=development"`
	HTTPPort int    `env:"HTTP_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	DatabaseDSN     string `env:"DATABASE_DSN,required"`
	DatabaseMaxOpen int    `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	DatabaseMaxIdle int    `env:"DATABASE_MAX_IDLE_CONNS,default=10"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD,default="`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	JWTSessionSecret string `env:"JWT_SESSION_SECRET,required"`
	ServiceAuthRSAPrivateKeyPEM string `env:"SERVICE_AUTH_RSA_PRIVATE_KEY,default="`
	ServiceAuthRSAPublicKeyPEM  string `env:"SERVICE_AUTH_RSA_PUBLIC_KEY,default="`

	VaultMasterKeyHex string `env:"VAULT_MASTER_KEY,default="`
	VaultKMSEnabled   bool   `env:"VAULT_KMS_ENABLED,default=false"`
	VaultKMSVaultURL  string `env:"VAULT_KMS_VAULT_URL,default="`
	VaultKMSSecretName string `env:"VAULT_KMS_SECRET_NAME,default=shadowtrace-master-key"`

	DiscoveryDefaultFrequencyHours  uint `env:"DISCOVERY_DEFAULT_FREQUENCY_HOURS,default=24"`
	DiscoveryMaxConcurrentRunsPerOrg uint `env:"DISCOVERY_MAX_CONCURRENT_RUNS_PER_ORG,default=4"`

	DetectorVelocityZScore        float64 `env:"DETECTOR_VELOCITY_ZSCORE,default=3.0"`
	DetectorBatchMinSize          uint    `env:"DETECTOR_BATCH_MIN_SIZE,default=5"`
	DetectorTimingVarianceMaxCV   float64 `env:"DETECTOR_TIMING_VARIANCE_MAX_CV,default=0.05"`

	BaselineMinSampleSize uint    `env:"BASELINE_MIN_SAMPLE_SIZE,default=50"`
	BaselineAdaptationRate float64 `env:"BASELINE_ADAPTATION_RATE,default=0.2"`

	RealtimeIdleTimeoutSec uint `env:"REALTIME_IDLE_TIMEOUT_SEC,default=120"`

	ValidatorEnabled         bool    `env:"VALIDATOR_ENABLED,default=false"`
	ValidatorMaxCostUSDPerRun float64 `env:"VALIDATOR_MAX_COST_USD_PER_RUN,default=1.0"`
	ValidatorEndpoint        string  `env:"VALIDATOR_ENDPOINT,default="`
	ValidatorAPIKey          string  `env:"VALIDATOR_API_KEY,default="`

	SlackClientID         string `env:"SLACK_CLIENT_ID,default="`
	SlackClientSecret      string `env:"SLACK_CLIENT_SECRET,default="`
	GoogleClientID         string `env:"GOOGLE_CLIENT_ID,default="`
	GoogleClientSecret     string `env:"GOOGLE_CLIENT_SECRET,default="`
	MicrosoftClientID      string `env:"MICROSOFT_CLIENT_ID,default="`
	MicrosoftClientSecret  string `env:"MICROSOFT_CLIENT_SECRET,default="`
	OAuthRedirectBaseURL   string `env:"OAUTH_REDIRECT_BASE_URL,default=http://localhost:8080"`

	// WorkerInternalURL, when set, switches cmd/api into split-process mode:
	// discovery triggers are forwarded over a ServiceToken-authenticated HTTP
	// call to cmd/worker (§11.bis) instead of running the Discovery Engine
	// in-process. Left empty, cmd/api runs the engine itself.
	WorkerInternalURL string `env:"WORKER_INTERNAL_URL,default="`
	// InternalPort is the port cmd/worker's ServiceToken-protected internal
	// HTTP surface listens on.
	InternalPort int `env:"INTERNAL_PORT,default=8081"`
}

// Load reads a .env file if present (local development convenience, ignored
// if missing) and decodes the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Env = strings.TrimSpace(cfg.Env)
	return &cfg, nil
}
