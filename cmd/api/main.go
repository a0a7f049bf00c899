package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ads360.org/internal/auth"
	"ads360.org/internal/campaign"
	"ads360.org/internal/config"
	"ads360.org/internal/directory"
	"ads360.org/internal/finance"
	"ads360.org/internal/httpapi"
	"ads360.org/internal/notify"
	"ads360.org/internal/obs"
	"ads360.org/internal/proofstore"
	"ads360.org/internal/rbac"
	"ads360.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GIT_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := pg.Open(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Principal cache is optional; without Redis every request resolves
	// against Postgres.
	var cache rbac.PrincipalCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = rbac.NewRedisPrincipalCache(client, 5*time.Minute)
	}

	rbacSvc, err := rbac.NewService(store, cache)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	authSvc, err := auth.NewService(rbacSvc, store, cfg.Auth.JWTSecret,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	dirSvc, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	var events notify.Publisher = notify.Nop{}
	if cfg.Broker.URL != "" {
		pub, err := notify.DialAMQP(cfg.Broker.URL, cfg.Broker.Queue)
		if err != nil {
			log.Fatalf("dial broker: %v", err)
		}
		defer pub.Close()
		events = pub
	}

	campSvc, err := campaign.NewService(store, dirSvc, events)
	if err != nil {
		log.Fatalf("campaign service: %v", err)
	}
	finSvc, err := finance.NewService(store, events)
	if err != nil {
		log.Fatalf("finance service: %v", err)
	}

	var proofs *proofstore.S3
	if cfg.AWS.ProofsBucket != "" {
		proofs, err = proofstore.NewS3(context.Background(), cfg.AWS)
		if err != nil {
			log.Fatalf("proof storage: %v", err)
		}
	}

	api := httpapi.New(httpapi.Deps{
		Auth:      authSvc,
		RBAC:      rbacSvc,
		Directory: dirSvc,
		Campaigns: campSvc,
		Finance:   finSvc,
		Proofs:    proofs,
		Ready:     httpapi.ReadyProbe{DB: store.DB()},
		Server:    cfg.Server,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting ads360-api %s on %s", version, srv.Addr)

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
