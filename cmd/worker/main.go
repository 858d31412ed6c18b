// Command worker runs the Discovery Engine side of the platform: the
// Detector Set, Correlator, Behavioral Baseline service, Connection
// Manager, and the periodic Scheduler, plus an internal HTTP surface that
// accepts triggers signed by cmd/api's ServiceToken (SPEC_FULL §11.bis).
// In a single-process deployment cmd/api runs the Discovery Engine itself
// and this binary is unused; WORKER_INTERNAL_URL unset on cmd/api is what
// selects that mode.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shadowtrace/discovery-platform/internal/baselinesvc"
	"github.com/shadowtrace/discovery-platform/internal/connectors"
	"github.com/shadowtrace/discovery-platform/internal/connmgr"
	"github.com/shadowtrace/discovery-platform/internal/correlator"
	"github.com/shadowtrace/discovery-platform/internal/detectors"
	"github.com/shadowtrace/discovery-platform/internal/discoveryengine"
	"github.com/shadowtrace/discovery-platform/internal/platform/authtoken"
	"github.com/shadowtrace/discovery-platform/internal/platform/config"
	"github.com/shadowtrace/discovery-platform/internal/platform/database"
	"github.com/shadowtrace/discovery-platform/internal/platform/logging"
	"github.com/shadowtrace/discovery-platform/internal/platform/metrics"
	"github.com/shadowtrace/discovery-platform/internal/platform/migrations"
	"github.com/shadowtrace/discovery-platform/internal/realtime"
	"github.com/shadowtrace/discovery-platform/internal/serviceauth"
	"github.com/shadowtrace/discovery-platform/internal/storage/postgres"
	"github.com/shadowtrace/discovery-platform/internal/system"
	"github.com/shadowtrace/discovery-platform/internal/vault"
	"github.com/shadowtrace/discovery-platform/internal/workerapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logging.NewFromEnv("worker")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDSN, database.PoolConfig{
		MaxOpenConns: cfg.DatabaseMaxOpen, MaxIdleConns: cfg.DatabaseMaxIdle, ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log_.Fatal(ctx, "open database", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		log_.Fatal(ctx, "apply migrations", err)
	}

	store := postgres.New(db)

	keySource, err := vault.NewKeySource(vault.KeySourceConfig{
		KMSEnabled: cfg.VaultKMSEnabled, KMSVaultURL: cfg.VaultKMSVaultURL,
		KMSSecretName: cfg.VaultKMSSecretName, EnvMasterKeyHex: cfg.VaultMasterKeyHex,
	})
	if err != nil {
		log_.Fatal(ctx, "build vault key source", err)
	}
	credVault := vault.New(db, keySource)

	registry := connectors.NewRegistry()
	if cfg.SlackClientID != "" {
		registry.Register(connectors.NewSlackAdapter(connectors.SlackConfig{
			ClientID: cfg.SlackClientID, ClientSecret: cfg.SlackClientSecret, RedirectURL: cfg.OAuthRedirectBaseURL + "/api/auth/callback/slack",
		}))
	}
	if cfg.GoogleClientID != "" {
		registry.Register(connectors.NewGoogleWorkspaceAdapter(connectors.GoogleWorkspaceConfig{
			ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret, RedirectURL: cfg.OAuthRedirectBaseURL + "/api/auth/callback/google_workspace",
		}))
	}
	if cfg.MicrosoftClientID != "" {
		registry.Register(connectors.NewMicrosoft365Adapter(connectors.Microsoft365Config{
			ClientID: cfg.MicrosoftClientID, ClientSecret: cfg.MicrosoftClientSecret, RedirectURL: cfg.OAuthRedirectBaseURL + "/api/auth/callback/microsoft365",
		}))
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})

	signer, err := authtoken.NewSigner(cfg.JWTSessionSecret)
	if err != nil {
		log_.Fatal(ctx, "build token signer", err)
	}

	m := metrics.New("worker")
	hub := realtime.New(redisClient, signer, log_, m, time.Duration(cfg.RealtimeIdleTimeoutSec)*time.Second)

	detectorSet := detectors.New(store, log_)
	if cfg.ValidatorEnabled && cfg.ValidatorEndpoint != "" {
		detectorSet.WithQualitativeClient(detectors.NewHTTPQualitativeClient(cfg.ValidatorEndpoint, cfg.ValidatorAPIKey, cfg.ValidatorMaxCostUSDPerRun))
	}
	correlatorSvc := correlator.New(store, log_)
	baseline := baselinesvc.New(store, redisClient, log_)
	engine := discoveryengine.New(store, registry, credVault, store, detectorSet, correlatorSvc, hub, log_, m).
		WithBaselineUpdater(baseline)
	scheduler := discoveryengine.NewScheduler(engine, store, log_)
	connManager := connmgr.New(store, registry, credVault, log_, m, 0)

	validator, err := buildValidator(cfg, log_)
	if err != nil {
		log_.Fatal(ctx, "build service token validator", err)
	}
	internalAddr := fmt.Sprintf(":%d", cfg.InternalPort)
	internalServer := workerapi.New(engine, validator, log_, internalAddr)

	services := []system.Service{hub, connManager, scheduler, internalServer}

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log_.Fatal(ctx, fmt.Sprintf("start %s", svc.Name()), err)
		}
		log_.Info(ctx, "service started", map[string]interface{}{"service": svc.Name()})
	}

	log_.Info(ctx, "worker ready", map[string]interface{}{"internal_addr": internalAddr})
	<-ctx.Done()
	log_.Info(ctx, "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log_.Error(shutdownCtx, fmt.Sprintf("stop %s", services[i].Name()), err, nil)
		}
	}
}

// buildValidator constructs the ServiceToken validator the internal surface
// uses to reject anything but the API Surface.
func buildValidator(cfg *config.Config, log_ *logging.Logger) (*serviceauth.Validator, error) {
	publicKey, err := serviceauth.ParseRSAPublicKeyFromPEM([]byte(cfg.ServiceAuthRSAPublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse service auth public key: %w", err)
	}
	return serviceauth.NewValidator(serviceauth.Config{
		PublicKey:       publicKey,
		AllowedServices: []string{"api"},
		Log:             log_,
	})
}
