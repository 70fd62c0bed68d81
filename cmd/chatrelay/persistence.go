package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence/mongodb"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence/postgres"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence/sqlite"
)

func openPersistenceEngine(ctx context.Context, settings Settings) (persistence.Engine, error) {
	switch settings.PersistenceDriver {
	case "sqlite":
		engine, err := sqlite.Open(settings.SQLitePath)
		if err != nil {
			return nil, err
		}

		return engine, nil
	case "postgres":
		if settings.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}

		engine, err := postgres.Connect(ctx, settings.DatabaseURL)
		if err != nil {
			return nil, err
		}

		return engine, nil
	case "mongodb":
		if settings.MongoDBURI == "" {
			return nil, errors.New("MONGODB_URI is required for the mongodb driver")
		}

		engine, err := mongodb.Connect(settings.MongoDBURI, settings.MongoDBDatabase)
		if err != nil {
			return nil, err
		}

		return engine, nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", settings.PersistenceDriver)
	}
}
