package main

import (
	"context"
	"fmt"
	"log"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
	"racuni/internal/infrastructure/memstore"
	"racuni/internal/infrastructure/postgres"
	httphandlers "racuni/internal/interfaces/http"
	"racuni/internal/shared/auth"
	"racuni/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB // nil with the memory store

	Registry    *entity.Registry
	SyncService *syncer.Service
	SyncHandler *httphandlers.SyncHandler
	JWT         *auth.JWT
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	registry := entity.NewRegistry()
	deps := &Dependencies{Registry: registry}

	var store syncer.Store
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Println("Warning: using in-memory store, data is lost on restart")
		store = memstore.New()
	default:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Println("Connected to database")
		deps.DB = db

		if cfg.Database.AutoMigrate {
			applied, err := db.Migrate(ctx)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
			log.Printf("Database schema up to date (%d migrations applied)", applied)
		}
		store = postgres.NewEntityStore(db, registry)
	}

	deps.SyncService = syncer.NewService(registry, store)
	deps.SyncHandler = httphandlers.NewSyncHandler(deps.SyncService, cfg.Server.MaxBodyBytes, cfg.Server.IsDevelopment())
	deps.JWT = auth.NewJWT(cfg.JWT.Secret)

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
