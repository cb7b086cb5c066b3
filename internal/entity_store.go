package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/db"
	"github.com/2beens/fittrack/internal/store"
	fsstore "github.com/2beens/fittrack/internal/store/firestore"
	pgstore "github.com/2beens/fittrack/internal/store/postgres"
)

// EntityStore is the document store selected by config, with what is needed
// to observe and release it.
type EntityStore struct {
	store.Store
	// DBPool is set for the postgres backend only.
	DBPool     *pgxpool.Pool
	Collectors []prometheus.Collector
	closeFunc  func() error
}

func OpenEntityStore(ctx context.Context, cfg *config.Config, tracingEnabled bool) (*EntityStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			TracingEnabled: tracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		pgStore := pgstore.NewStore(dbPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ensure store schema: %w", err)
		}
		return &EntityStore{
			Store:      pgStore,
			DBPool:     dbPool,
			Collectors: []prometheus.Collector{db.NewPoolCollector(dbPool, cfg.PostgresDBName)},
			closeFunc: func() error {
				log.Debugln("closing db pool ...")
				dbPool.Close() // blocking operation
				log.Debugln("db pool closed")
				return nil
			},
		}, nil
	case config.StoreBackendFirestore:
		client, err := fsstore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, fmt.Errorf("new firestore client: %w", err)
		}
		fsStore := fsstore.NewStore(client)
		return &EntityStore{
			Store:     fsStore,
			closeFunc: fsStore.Close,
		}, nil
	default:
		log.Warnln("using the in-memory entity store, all data is lost on restart")
		return &EntityStore{Store: store.NewMemStore()}, nil
	}
}

func (s *EntityStore) Close() error {
	if s.closeFunc == nil {
		return nil
	}
	return s.closeFunc()
}
