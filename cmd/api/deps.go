package main

import (
	"context"
	"log"

	"denaro/internal/domain/banking"
	"denaro/internal/infrastructure/firebase"
	"denaro/internal/infrastructure/gocardless"
	"denaro/internal/infrastructure/identity"
	"denaro/internal/infrastructure/postgres"
	httphandlers "denaro/internal/interfaces/http"
	"denaro/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	BankingHandler *httphandlers.BankingHandler

	// Auth
	Verifier identity.Verifier
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize repositories
	sessionRepo := postgres.NewSessionRepository(db)
	requisitionRepo := postgres.NewRequisitionRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)

	// Initialize aggregator and identity clients
	gcClient := gocardless.NewClient(cfg.Aggregator.BaseURL, cfg.Aggregator.SecretID, cfg.Aggregator.SecretKey)
	verifier := identity.NewClient(cfg.Identity.BaseURL)

	// Initialize push messenger if configured
	var messenger banking.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize FCM client: %v", err)
		} else {
			messenger = fcm
		}
	}

	// Initialize domain services
	sessionService := banking.NewSessionService(sessionRepo, gcClient, nil)
	linkingService := banking.NewLinkingService(sessionService, gcClient, requisitionRepo, deviceRepo, messenger)

	// Initialize handlers
	bankingHandler := httphandlers.NewBankingHandler(linkingService, deviceRepo)

	return &Dependencies{
		DB:             db,
		BankingHandler: bankingHandler,
		Verifier:       verifier,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
