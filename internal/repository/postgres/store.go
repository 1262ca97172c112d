package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careportal-api/internal/repository"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db      *sqlx.DB
	base    BaseRepository
	inTx    bool
	timeout time.Duration
}

// NewStore wraps an open pool. timeout bounds every single query.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{
		db:      db,
		base:    NewBaseRepository(db, timeout),
		timeout: timeout,
	}
}

func (s *Store) Actors() repository.ActorRepository {
	return &actorRepository{s.base}
}

func (s *Store) Tokens() repository.TokenRepository {
	return &tokenRepository{s.base}
}

func (s *Store) Assignments() repository.AssignmentRepository {
	return &assignmentRepository{s.base}
}

func (s *Store) EmergencyContacts() repository.EmergencyContactRepository {
	return &emergencyContactRepository{s.base}
}

// RunInTx runs fn against a Store bound to one transaction. Nested calls
// join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(ctx, &Store{
			db:      s.db,
			base:    NewBaseRepository(tx, s.timeout),
			inTx:    true,
			timeout: s.timeout,
		})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Storage("ping database", err)
	}
	return nil
}
