package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	chainrepo "github.com/ovaphlow/pitchfork/service-lending-go/internal/chain/repo"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/deploy"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer"
	indexerrepo "github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer/repo"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	cfg := config.FromEnv()
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-lending-go")

	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("config: %v", err)
	}
	signerKey, _ := cfg.ParseSignerKey()

	genesis, err := cfg.Genesis()
	if err != nil {
		sugar.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sqlx.DB
	if cfg.LedgerPersist || cfg.IndexerEnabled {
		db, err = database.Connect(cfg.Database)
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		defer db.Close()
	}

	opts := deploy.Options{
		Logger:        sugar,
		SignerKey:     signerKey,
		SnowflakeNode: cfg.SnowflakeNode,
	}
	if cfg.LedgerPersist {
		store := chainrepo.NewSnapshotRepo(db)
		if err := store.EnsureTable(ctx); err != nil {
			sugar.Fatalf("%v", err)
		}
		opts.Store = store
	} else {
		sugar.Warn("ledger persistence disabled; state is lost on exit")
	}

	d, err := deploy.New(ctx, genesis, opts)
	if err != nil {
		sugar.Fatalf("deploy: %v", err)
	}

	authSvc, err := auth.NewService(auth.Config{
		Secret:    []byte(cfg.AuthSecret),
		Operator:  d.Operator,
		AccessTTL: cfg.AccessTTL,
	})
	if err != nil {
		sugar.Fatalf("auth: %v", err)
	}

	deps := router.Deps{BasePath: cfg.BasePath, Deployment: d, Auth: authSvc}

	// the indexer mirror is optional; contracts never depend on it
	if cfg.IndexerEnabled {
		repo := indexerrepo.NewEventRepo(db)
		if err := repo.EnsureTable(ctx); err != nil {
			sugar.Fatalf("%v", err)
		}
		idx := indexer.NewService(d.Chain, repo, indexer.Config{
			Interval: cfg.IndexerInterval,
			Logger:   sugar.Named("indexer"),
		})
		deps.Indexer = idx
		go func() {
			if err := idx.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				sugar.Errorw("indexer stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.RegisterRoutes(sugar, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running", "addr", cfg.Addr, "base_path", cfg.BasePath)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
