package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/susu3304/tablesplit/internal/api"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/db"
	"github.com/susu3304/tablesplit/internal/identity"
	"github.com/susu3304/tablesplit/internal/notify"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Profiles come from the identity service when configured, cached in users
	var remote *identity.Client
	if cfg.Profile.Enabled() {
		remote = identity.NewClient(identity.Config{
			ServiceURL:   cfg.Profile.ServiceURL,
			ClientID:     cfg.Profile.ClientID,
			ClientSecret: cfg.Profile.ClientSecret,
			TokenURL:     cfg.Profile.TokenURL,
		})
	}

	opts := tablesession.Options{
		QueueSize:      cfg.ActorQueueSize,
		PersistTimeout: cfg.PersistTimeout,
		Directory:      identity.NewDirectory(remote, database),
		Invoicer:       database.Settlements(),
	}
	if cfg.DiscordWebhookURL != "" {
		notifier, err := notify.NewDiscord(cfg.DiscordWebhookURL)
		if err != nil {
			log.Fatalf("Failed to configure discord webhook: %v", err)
		}
		opts.Notifier = notifier
	}

	registry := tablesession.NewRegistry(database.Sessions(), opts, cfg.SessionGracePeriod)
	registry.Start()

	// Initialize API server
	apiServer := api.New(cfg, registry, database.Settlements(), database)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("API server error: %v", err)
		}
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown: %v", err)
	}
	registry.Stop()
}
