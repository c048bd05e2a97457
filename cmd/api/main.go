package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookkeeper.org/internal/auth"
	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/config"
	"bookkeeper.org/internal/httpapi"
	"bookkeeper.org/internal/identity"
	"bookkeeper.org/internal/obs"
	"bookkeeper.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("BOOKKEEPER_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// Store selection: Postgres when a DSN is configured, in-memory otherwise.
	var (
		quotas      bookkeeper.QuotaStore
		usages      bookkeeper.UsageStore
		customers   bookkeeper.CustomerStore
		memberships identity.MembershipStore
		probe       httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		store, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		quotas, usages, customers = store, store, store
		memberships = pg.NewMemberships(store)
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		mem := bookkeeper.NewInMemory()
		quotas, usages, customers = mem, mem, mem
		memberships = identity.StaticMemberships(cfg.Identity.Groups)
		log.Print("no database DSN configured, using the in-memory store")
	}

	resolver := identity.NewDirectory(cfg.Identity.AdminSubjects, memberships)
	coordinator := bookkeeper.NewCoordinator(
		bookkeeper.NewVisibilityEngine(quotas, resolver),
		bookkeeper.NewLifecycleManager(quotas, customers, resolver),
		bookkeeper.NewUsageLedger(usages, quotas),
	)
	registry := bookkeeper.NewCustomerRegistry(customers, resolver)

	api := httpapi.New(coordinator, registry, tokens, probe, version,
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting bookkeeper-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
