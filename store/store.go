// Package store persists harvest results.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-wishlist-harvester/config"
	"github.com/aluiziolira/go-wishlist-harvester/models"
)

// ErrBadUserID is returned when a user id was not produced by the same
// backend.
var ErrBadUserID = errors.New("store: malformed user id")

// Store receives the profile and wishlist of a finished harvest.
type Store interface {
	// SaveUser upserts the profile keyed by email and returns its id.
	SaveUser(ctx context.Context, user models.UserProfile) (string, error)
	// SaveFavorites replaces the user's stored wishlist with products.
	SaveFavorites(ctx context.Context, userID string, products []*models.Product) error
	Close() error
}

// Open connects the backend selected by cfg.StoreType. It returns a nil
// Store for "none".
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreType {
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "mongo":
		m, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.StoreType)
	}
}

// Save writes user and products in order. Products are only written once
// the user id is known.
func Save(ctx context.Context, s Store, result *models.HarvestResult) (string, error) {
	userID, err := s.SaveUser(ctx, result.User)
	if err != nil {
		return "", fmt.Errorf("save user: %w", err)
	}
	if err := s.SaveFavorites(ctx, userID, result.Products); err != nil {
		return userID, fmt.Errorf("save favorites: %w", err)
	}
	return userID, nil
}
