package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/accounts"
	"github.com/switchboardhq/switchboard/internal/acme"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/db"
	"github.com/switchboardhq/switchboard/internal/delivery"
	"github.com/switchboardhq/switchboard/internal/events"
	"github.com/switchboardhq/switchboard/internal/logging"
	"github.com/switchboardhq/switchboard/internal/platform"
	"github.com/switchboardhq/switchboard/internal/platform/facebook"
	"github.com/switchboardhq/switchboard/internal/platform/instagram"
	"github.com/switchboardhq/switchboard/internal/platform/tiktok"
	"github.com/switchboardhq/switchboard/internal/platform/whatsapp"
	"github.com/switchboardhq/switchboard/internal/platform/youtube"
	"github.com/switchboardhq/switchboard/internal/ratelimit"
	"github.com/switchboardhq/switchboard/internal/server"
	"github.com/switchboardhq/switchboard/internal/vault"
)

var serverFlags struct {
	apiPort     int
	httpsPort   int
	domain      string
	dbPath      string
	acme        bool
	acmeEmail   string
	acmeStaging bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API and webhook server",
	Long: `Start the switchboard API server. It serves the /v1 API, the WhatsApp
status webhook at /webhooks/whatsapp/status, /healthz and /metrics.

Configuration is read from the environment and .env; flags override it.
TOKEN_ENCRYPTION_KEY must hold a 64 character hex key (see 'switchboard keygen').

With --acme, a certificate for --domain is obtained from Let's Encrypt and the
same handler is also served over HTTPS on --https-port.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVar(&serverFlags.apiPort, "api-port", 0, "API port to listen on (env SWITCHBOARD_API_PORT)")
	serverCmd.Flags().IntVar(&serverFlags.httpsPort, "https-port", 0, "HTTPS port for ACME mode (env SWITCHBOARD_HTTPS_PORT)")
	serverCmd.Flags().StringVar(&serverFlags.domain, "domain", "", "public webhook hostname (env SWITCHBOARD_DOMAIN)")
	serverCmd.Flags().StringVar(&serverFlags.dbPath, "db", "", "database path (env SWITCHBOARD_DB)")
	serverCmd.Flags().BoolVar(&serverFlags.acme, "acme", false, "obtain a certificate via ACME (env SWITCHBOARD_ACME)")
	serverCmd.Flags().StringVar(&serverFlags.acmeEmail, "acme-email", "", "email for Let's Encrypt notifications")
	serverCmd.Flags().BoolVar(&serverFlags.acmeStaging, "acme-staging", false, "use Let's Encrypt staging CA")
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("api-port") {
		cfg.APIPort = serverFlags.apiPort
	}
	if f.Changed("https-port") {
		cfg.HTTPSPort = serverFlags.httpsPort
	}
	if f.Changed("domain") {
		cfg.Domain = serverFlags.domain
	}
	if f.Changed("db") {
		cfg.DBPath = serverFlags.dbPath
	}
	if f.Changed("acme") {
		cfg.ACME = serverFlags.acme
	}
	if f.Changed("acme-email") {
		cfg.ACMEEmail = serverFlags.acmeEmail
	}
	if f.Changed("acme-staging") {
		cfg.ACMEStaging = serverFlags.acmeStaging
	}
}

// newRegistry registers every platform adapter. All adapters share one HTTP
// client with the configured timeout.
// newVault returns the environment-keyed vault. The key is resolved on first
// use, so a missing key only fails the requests that need it.
func newVault(logger *zap.Logger) *vault.Vault {
	if os.Getenv(vault.KeyEnv) == "" {
		logger.Warn(vault.KeyEnv + " not set; connecting, publishing and refreshing accounts will fail")
	}
	return vault.FromEnv()
}

func newRegistry(cfg *config.Config, hc *http.Client, logger *zap.Logger) (*platform.Registry, error) {
	reg := platform.NewRegistry(logger)
	adapters := []platform.Adapter{
		facebook.New(facebook.Config{HTTPClient: hc, AppID: cfg.FacebookAppID, AppSecret: cfg.FacebookAppSecret}),
		instagram.New(instagram.Config{HTTPClient: hc}),
		tiktok.New(tiktok.Config{HTTPClient: hc, ClientKey: cfg.TikTokClientKey, ClientSecret: cfg.TikTokClientSecret}),
		youtube.New(youtube.Config{HTTPClient: hc, ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret}),
		whatsapp.New(whatsapp.Config{HTTPClient: hc, StatusCallbackURL: cfg.StatusCallbackURL}),
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newLimiterStore returns the Redis store when configured, else an in-memory
// store swept in the background until ctx ends.
func newLimiterStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("rate limiting with redis")
		return ratelimit.NewRedisStore(rdb, "switchboard:ratelimit:"), func() { _ = rdb.Close() }, nil
	}
	store := ratelimit.NewMemoryStore()
	if cfg.RateSweepInterval > 0 {
		go store.RunSweeper(ctx, cfg.RateSweepInterval)
	}
	return store, func() {}, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := newVault(logger)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	count, err := db.CountAPIKeys(database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count == 0 {
		displayKey, err := createAPIKey(database)
		if err != nil {
			return err
		}
		fmt.Println("=============================================================")
		fmt.Println("API KEY CREATED (save this, it will not be shown again):")
		fmt.Println(displayKey)
		fmt.Println("=============================================================")
	}

	store, closeStore, err := newLimiterStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	limiter := ratelimit.NewLimiter(store, ratelimit.WithLimit(cfg.RateLimit), ratelimit.WithWindow(cfg.RateWindow))

	registry, err := newRegistry(cfg, &http.Client{Timeout: cfg.HTTPTimeout}, logger.Named("platform"))
	if err != nil {
		return err
	}

	messages := &delivery.SQLiteStore{DB: database}
	svc := &accounts.Service{
		DB:       database,
		Vault:    v,
		Registry: registry,
		Outbound: messages,
		Logger:   logger.Named("accounts"),
	}
	reconcilerCfg := delivery.Config{
		AuthToken:        cfg.TwilioAuthToken,
		RequireSignature: cfg.RequireWebhookSignature,
		Store:            messages,
		Logger:           logger.Named("delivery"),
	}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		bus := events.NewBus(nc, events.DefaultPrefix)
		svc.Notifier = bus
		reconcilerCfg.Notifier = bus
		logger.Info("publishing events to nats", zap.String("url", cfg.NATSURL))
	}
	if cfg.TwilioAuthToken == "" && cfg.RequireWebhookSignature {
		logger.Warn("TWILIO_AUTH_TOKEN not set; all status callbacks will be rejected")
	}

	apiSrv := &server.APIServer{
		DB:         database,
		Accounts:   svc,
		Registry:   registry,
		Limiter:    limiter,
		Reconciler: delivery.NewReconciler(reconcilerCfg),
		Messages:   messages,
		WebhookURL: cfg.WebhookURL,
		Logger:     logger.Named("api"),
	}
	handler := apiSrv.Handler()

	var manager *acme.Manager
	if cfg.ACME {
		manager = acme.NewManager(cfg.Domain, cfg.ACMEEmail, database, cfg.ACMEStaging, logger.Named("certmagic"))
		handler = manager.HTTPChallengeHandler(handler)
	}

	apiServer := server.NewManagedServer("api", server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.APIPort), handler, logger.Named("api")))
	apiServer.Start()
	if err := apiServer.WaitForStartup(200 * time.Millisecond); err != nil {
		return err
	}
	servers := []*server.ManagedServer{apiServer}

	if manager != nil {
		if err := manager.Manage(ctx); err != nil {
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificate obtained", logging.Domain(cfg.Domain))

		httpsCfg := server.DefaultServerConfig(fmt.Sprintf(":%d", cfg.HTTPSPort), apiSrv.Handler(), logger.Named("https"))
		httpsCfg.TLSConfig = manager.TLSConfig()
		httpsServer := server.NewManagedServer("https", httpsCfg)
		httpsServer.Start()
		if err := httpsServer.WaitForStartup(200 * time.Millisecond); err != nil {
			return err
		}
		servers = append(servers, httpsServer)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, s := range servers {
		s.Shutdown(shutdownCtx)
	}
	return nil
}
