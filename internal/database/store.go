package database

import (
	"context"
	"database/sql"
)

// Store is the PostgreSQL-backed persistence for the sync subsystem.
type Store struct {
	*UserRepository
	*ActivityRepository
	*SyncRunRepository

	db *sql.DB
}

// NewStore builds a Store over an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		UserRepository:     NewUserRepository(db),
		ActivityRepository: NewActivityRepository(db),
		SyncRunRepository:  NewSyncRunRepository(db),
		db:                 db,
	}
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return HealthCheck(ctx, s.db)
}

// DB exposes the pool for statistics.
func (s *Store) DB() *sql.DB {
	return s.db
}
