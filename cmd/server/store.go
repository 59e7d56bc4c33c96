package main

import (
	"context"
	"fmt"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/repository/mongo"
	"github.com/Rrens/practice-chat/internal/repository/postgres"
	"github.com/Rrens/practice-chat/internal/repository/sqlstore"
	"github.com/rs/zerolog/log"
)

// store is the selected persistence backend
type store struct {
	sessions    domain.SessionRepository
	preferences domain.PreferenceRepository
	close       func()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.RunMigrations(cfg.DSN(), cfg.MigrationsPath); err != nil {
				return nil, err
			}
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions:    postgres.NewSessionRepository(db.Pool),
			preferences: postgres.NewPreferenceRepository(db.Pool),
			close:       db.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions:    sqlstore.NewSessionRepository(db),
			preferences: sqlstore.NewPreferenceRepository(db),
			close:       func() { db.Close() },
		}, nil

	case config.DriverMySQL:
		db, err := sqlstore.OpenMySQL(ctx, cfg.MySQLDSN, int(cfg.MaxConns))
		if err != nil {
			return nil, err
		}
		return &store{
			sessions:    sqlstore.NewSessionRepository(db),
			preferences: sqlstore.NewPreferenceRepository(db),
			close:       func() { db.Close() },
		}, nil

	case config.DriverMongo:
		db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions:    mongo.NewSessionRepository(db),
			preferences: mongo.NewPreferenceRepository(db),
			close: func() {
				if err := db.Close(context.Background()); err != nil {
					log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}
