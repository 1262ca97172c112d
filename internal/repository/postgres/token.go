package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/careportal-api/internal/model"
	"github.com/jwalitptl/careportal-api/internal/repository"
	apperrors "github.com/jwalitptl/careportal-api/pkg/errors"
)

const tokenColumns = `id, kind, email, token, expires_at, used, used_at, created_at`

type tokenRepository struct {
	BaseRepository
}

func (r *tokenRepository) Create(ctx context.Context, token *model.OpaqueToken) error {
	query := `
		INSERT INTO user_tokens (` + tokenColumns + `)
		VALUES (:id, :kind, :email, :token, :expires_at, :used, :used_at, :created_at)`

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.Email = model.NormalizeEmail(token.Email)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, token); err != nil {
		return storageErr("store token", err)
	}
	return nil
}

func (r *tokenRepository) Get(ctx context.Context, kind model.TokenKind, token string) (*model.OpaqueToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM user_tokens WHERE token = $1 AND kind = $2`

	var t model.OpaqueToken
	if err := r.get(ctx, &t, query, token, kind); err != nil {
		if isNoRows(err) {
			return nil, apperrors.InvalidToken("invalid token", err)
		}
		return nil, storageErr("get token", err)
	}
	return &t, nil
}

// Consume flips used in the same statement that checks it, so concurrent
// callers cannot both succeed. A miss is classified by a follow-up read.
func (r *tokenRepository) Consume(ctx context.Context, kind model.TokenKind, token, email string, now time.Time) (*model.OpaqueToken, error) {
	query := `
		UPDATE user_tokens SET used = true, used_at = $4
		WHERE token = $1
			AND kind = $2
			AND ($3 = '' OR email = $3)
			AND used = false
			AND expires_at > $4
		RETURNING ` + tokenColumns

	email = model.NormalizeEmail(email)

	var t model.OpaqueToken
	err := r.get(ctx, &t, query, token, kind, email, now)
	if err == nil {
		return &t, nil
	}
	if !isNoRows(err) {
		return nil, storageErr("consume token", err)
	}

	existing, err := r.Get(ctx, kind, token)
	if err != nil {
		return nil, err
	}
	return nil, repository.ClassifyTokenMiss(existing, email, now)
}

func (r *tokenRepository) RevokeForEmail(ctx context.Context, kind model.TokenKind, email string) (int64, error) {
	query := `DELETE FROM user_tokens WHERE kind = $1 AND email = $2 AND used = false`

	n, err := r.exec(ctx, query, kind, model.NormalizeEmail(email))
	if err != nil {
		return 0, storageErr("revoke tokens", err)
	}
	return n, nil
}

func (r *tokenRepository) DeleteForEmail(ctx context.Context, email string) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM user_tokens WHERE email = $1`, model.NormalizeEmail(email))
	if err != nil {
		return 0, storageErr("delete tokens", err)
	}
	return n, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM user_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, storageErr("delete expired tokens", err)
	}
	return n, nil
}
