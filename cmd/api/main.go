// Command api runs the API Surface: the REST/JSON HTTP server, the
// Real-Time Hub, and — in a single-process deployment — the Discovery
// Engine itself (Detector Set, Correlator, Baseline module, Scheduler,
// Connection Manager). Setting WORKER_INTERNAL_URL switches this process
// into split-process mode, forwarding discovery triggers to a separately
// deployed cmd/worker over the ServiceToken-authenticated internal
// contract (SPEC_FULL §11.bis) instead of running the engine here.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shadowtrace/discovery-platform/internal/analytics"
	"github.com/shadowtrace/discovery-platform/internal/api"
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
	"github.com/shadowtrace/discovery-platform/internal/platform/ratelimit"
	"github.com/shadowtrace/discovery-platform/internal/realtime"
	"github.com/shadowtrace/discovery-platform/internal/serviceauth"
	"github.com/shadowtrace/discovery-platform/internal/storage/postgres"
	"github.com/shadowtrace/discovery-platform/internal/system"
	"github.com/shadowtrace/discovery-platform/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewFromEnv("api")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDSN, database.PoolConfig{
		MaxOpenConns: cfg.DatabaseMaxOpen, MaxIdleConns: cfg.DatabaseMaxIdle, ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		logger.Fatal(ctx, "open database", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		logger.Fatal(ctx, "apply migrations", err)
	}

	store := postgres.New(db)

	keySource, err := vault.NewKeySource(vault.KeySourceConfig{
		KMSEnabled: cfg.VaultKMSEnabled, KMSVaultURL: cfg.VaultKMSVaultURL,
		KMSSecretName: cfg.VaultKMSSecretName, EnvMasterKeyHex: cfg.VaultMasterKeyHex,
	})
	if err != nil {
		logger.Fatal(ctx, "build vault key source", err)
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
		logger.Fatal(ctx, "build token signer", err)
	}

	m := metrics.New("api")
	hub := realtime.New(redisClient, signer, logger, m, time.Duration(cfg.RealtimeIdleTimeoutSec)*time.Second)
	analyticsSvc := analytics.New(store)

	services := []system.Service{hub}

	trigger, connManager, scheduler, baseline := buildDiscoverySide(cfg, store, registry, credVault, hub, redisClient, logger, m)
	if connManager != nil {
		services = append(services, connManager, scheduler)
	}

	apiServer := api.New(api.Deps{
		Store:            store,
		DB:               db,
		Signer:           signer,
		Connectors:       registry,
		Vault:            credVault,
		Trigger:          trigger,
		Hub:              hub,
		Baseline:         baseline,
		Analytics:        analyticsSvc,
		OAuthStateSecret: cfg.JWTSessionSecret,
		RateLimit:        ratelimit.Config{RequestsPerSecond: 10, Burst: 20},
		Log:              logger,
		Metrics:          m,
		Addr:             fmt.Sprintf(":%d", cfg.HTTPPort),
	})
	services = append(services, apiServer)

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			logger.Fatal(ctx, fmt.Sprintf("start %s", svc.Name()), err)
		}
		logger.Info(ctx, "service started", map[string]interface{}{"service": svc.Name()})
	}

	logger.Info(ctx, "api surface ready", map[string]interface{}{"addr": fmt.Sprintf(":%d", cfg.HTTPPort)})
	<-ctx.Done()
	logger.Info(ctx, "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, fmt.Sprintf("stop %s", services[i].Name()), err, nil)
		}
	}
}

// buildDiscoverySide constructs the DiscoveryTrigger this process hands to
// the API Surface. With WorkerInternalURL unset, it runs the Discovery
// Engine (and its Scheduler/Connection Manager) in this same process,
// monolith-style; with it set, it builds a WorkerClient instead and leaves
// connManager/scheduler nil since those run in the separate worker.
func buildDiscoverySide(
	cfg *config.Config,
	store *postgres.Store,
	registry *connectors.Registry,
	credVault *vault.Vault,
	hub *realtime.Hub,
	redisClient *redis.Client,
	logger *logging.Logger,
	m *metrics.Metrics,
) (api.DiscoveryTrigger, *connmgr.Manager, *discoveryengine.Scheduler, *baselinesvc.Service) {
	// The Baseline & Reinforcement Module only needs the store and Redis, not
	// the engine, so it runs in this process (feeding /api/feedback) even in
	// split-process mode; only RecomputeBaseline's engine hook lives on
	// whichever side runs the Discovery Engine.
	baseline := baselinesvc.New(store, redisClient, logger)

	if cfg.WorkerInternalURL != "" {
		privateKey, err := serviceauth.ParseRSAPrivateKeyFromPEM([]byte(cfg.ServiceAuthRSAPrivateKeyPEM))
		if err != nil {
			logger.Fatal(context.Background(), "parse service auth private key", err)
		}
		generator := serviceauth.NewServiceTokenGenerator(privateKey, "api", serviceauth.DefaultServiceTokenExpiry)
		return api.NewWorkerClient(cfg.WorkerInternalURL, generator), nil, nil, baseline
	}

	detectorSet := detectors.New(store, logger)
	if cfg.ValidatorEnabled && cfg.ValidatorEndpoint != "" {
		detectorSet.WithQualitativeClient(detectors.NewHTTPQualitativeClient(cfg.ValidatorEndpoint, cfg.ValidatorAPIKey, cfg.ValidatorMaxCostUSDPerRun))
	}
	correlatorSvc := correlator.New(store, logger)
	engine := discoveryengine.New(store, registry, credVault, store, detectorSet, correlatorSvc, hub, logger, m).
		WithBaselineUpdater(baseline)
	scheduler := discoveryengine.NewScheduler(engine, store, logger)
	connManager := connmgr.New(store, registry, credVault, logger, m, 0)
	return engine, connManager, scheduler, baseline
}
