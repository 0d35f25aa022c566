// Command trustwotd runs the Nostr web-of-trust scoring daemon: it loads
// configuration, initializes the social graph and its caches, and serves
// the RPC tool surface over both a signed pub/sub transport and a local
// JSON/HTTP mirror until asked to stop.
//
// Grounded on the teacher's cmd/explorer/main.go (godotenv.Load then viper
// wiring a single service + server pair) generalized to cobra (teacher's
// cmd/cli convention) since this daemon needs subcommands (serve, version)
// rather than one fixed entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trustwotd/core/cache"
	"trustwotd/core/distance"
	"trustwotd/core/graph"
	"trustwotd/core/maintenance"
	"trustwotd/core/ratelimit"
	"trustwotd/core/rpc"
	"trustwotd/core/service"
	"trustwotd/core/validators"
	"trustwotd/core/weights"
	"trustwotd/internal/config"
	"trustwotd/internal/httpapi"
	"trustwotd/internal/nostrsource"
	"trustwotd/pkg/pubkey"
)

var configFile string
var httpAddr string
var listenAddr string
var logLevel string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trustwotd",
		Short: "Nostr web-of-trust scoring daemon",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the scoring daemon until signaled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	serve.Flags().StringVar(&httpAddr, "http-addr", ":8080", "address for the local JSON/HTTP mirror")
	serve.Flags().StringVar(&listenAddr, "listen-addr", "/ip4/0.0.0.0/tcp/0", "libp2p multiaddr to listen on")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(config.Version)
			return nil
		},
	})

	return root
}

func runServe(ctx context.Context) error {
	_ = godotenv.Load(".env")

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, warnings, err := config.NewLoader(configFile).Load()
	if err != nil {
		log.WithError(err).Error("configuration load failed")
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	rootPubkey, err := pubkey.Canonicalize(cfg.DefaultSourcePubkey)
	if err != nil {
		log.WithError(err).Error("invalid defaultSourcePubkey")
		return err
	}

	databasePath := cfg.DatabasePath
	if databasePath == "" {
		databasePath = "./trustwotd.db"
	}
	snapshotPath := filepath.Join(filepath.Dir(databasePath), "graph.snapshot")

	metricsCache, err := cache.Open(databasePath, cache.DefaultMaxEntries, log)
	if err != nil {
		log.WithError(err).Error("failed to open metrics cache")
		return err
	}
	defer metricsCache.Close()

	g := graph.New(log)
	var snapshotBlob []byte
	if blob, err := os.ReadFile(snapshotPath); err == nil {
		snapshotBlob = blob
	}
	if err := g.Initialize(rootPubkey, snapshotBlob); err != nil {
		log.WithError(err).Error("failed to initialize social graph")
		return err
	}

	weightRegistry := weights.New(log)
	for name, p := range defaultWeightProfiles() {
		if err := weightRegistry.Register(p); err != nil {
			log.WithError(err).Errorf("failed to register weight profile %q", name)
			return err
		}
	}
	scheme := cfg.WeightingScheme
	if scheme == "" {
		scheme = "default"
	}
	if err := weightRegistry.Activate(scheme); err != nil {
		log.WithError(err).Errorf("unknown weightingScheme %q", scheme)
		return err
	}

	crawlCtx, cancelCrawl := context.WithCancel(context.Background())
	defer cancelCrawl()
	source := nostrsource.New(crawlCtx, cfg.NostrRelays, log)

	validatorRegistry := validators.New(validators.DefaultTimeout, log)
	validatorRegistry.Register(validators.NewNip05Valid(source))
	validatorRegistry.Register(validators.NewLightningAddress(source))
	validatorRegistry.Register(validators.NewEventKind10002(source))
	validatorRegistry.Register(validators.NewReciprocity(g))
	validatorRegistry.Register(validators.NewIsRootNip05(source))

	if coverage, err := weightRegistry.ValidateCoverage(validatorRegistry.Names()); err == nil {
		for _, m := range coverage.Missing {
			log.Warnf("validator %q has no weight in the active profile", m)
		}
		for _, e := range coverage.Extra {
			log.Warnf("active profile weights %q but no such validator is registered", e)
		}
	}

	normalizer := distance.New(distance.Profile{
		Name:        "configured",
		Family:      distance.Linear,
		DecayFactor: cfg.DecayFactor,
		MaxDistance: distance.Default.MaxDistance,
		SelfWeight:  distance.Default.SelfWeight,
	})

	svc := service.New(g, weightRegistry, validatorRegistry, normalizer, metricsCache, source)

	limiters := ratelimit.NewRegistry(ratelimit.Config{
		Capacity:        float64(cfg.RateLimitTokens),
		RefillPerSecond: float64(cfg.RateLimitRefillRate),
	})
	toolRouter := rpc.NewToolRouter(svc, limiters, log)

	signer, err := rpc.NewSecp256k1Signer(cfg.ServerSecretKey)
	if err != nil {
		log.WithError(err).Error("invalid serverSecretKey")
		return err
	}

	transport, err := rpc.NewPubsubTransport(listenAddr, "trustwotd-rpc", signer, toolRouter, log)
	if err != nil {
		log.WithError(err).Error("failed to start pub/sub transport")
		return err
	}

	httpServer := httpapi.NewServer(httpAddr, toolRouter, log)

	runner := maintenance.New(
		metricsCache, g, snapshotPath,
		time.Duration(cfg.CleanupIntervalSeconds)*time.Second,
		time.Duration(cfg.SyncIntervalSeconds)*time.Second,
		time.Duration(cfg.ValidationSyncIntervalSeconds)*time.Second,
		source,
		log,
	)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := transport.Serve(runCtx); err != nil {
			log.WithError(err).Error("pub/sub transport stopped with error")
		}
	}()
	go func() {
		log.Infof("local JSON/HTTP mirror listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil {
			log.WithError(err).Warn("http server stopped")
		}
	}()
	go runner.Run(runCtx)

	<-runCtx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = transport.Close()

	return nil
}

// defaultWeightProfiles seeds the registry with a profile matching the
// five validators this daemon always registers, plus a conservative
// alternative operators can opt into via weightingScheme.
func defaultWeightProfiles() map[string]weights.Profile {
	return map[string]weights.Profile{
		"default": {
			Name:           "default",
			DistanceWeight: 0.4,
			ValidatorWeights: map[string]float64{
				"nip05Valid":       0.2,
				"lightningAddress": 0.1,
				"eventKind10002":   0.1,
				"reciprocity":      0.15,
				"isRootNip05":      0.05,
			},
		},
		"conservative": {
			Name:           "conservative",
			DistanceWeight: 0.6,
			ValidatorWeights: map[string]float64{
				"nip05Valid":       0.15,
				"lightningAddress": 0.05,
				"eventKind10002":   0.05,
				"reciprocity":      0.1,
				"isRootNip05":      0.05,
			},
		},
	}
}
