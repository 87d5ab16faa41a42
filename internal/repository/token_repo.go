package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-docrequest/internal/database"
	"go-docrequest/internal/model"
)

var tokenTables = map[model.PrincipalKind]string{
	model.KindAdmin:   "admin_tokens",
	model.KindStudent: "student_tokens",
}

// TokenRepository is the token store for one principal kind. Both kinds
// share this code and differ only by table.
type TokenRepository struct {
	pool  *pgxpool.Pool
	kind  model.PrincipalKind
	table string
}

func NewTokenRepository(pool *pgxpool.Pool, kind model.PrincipalKind) (*TokenRepository, error) {
	table, ok := tokenTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPrincipal, kind)
	}

	return &TokenRepository{pool: pool, kind: kind, table: table}, nil
}

func (r *TokenRepository) Kind() model.PrincipalKind {
	return r.kind
}

// Issue replaces every token of the owner with token. Concurrent issuance
// for one owner is serialized by an advisory lock, so the later login wins.
func (r *TokenRepository) Issue(ctx context.Context, token model.Token) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := database.LockKey(ctx, tx, "token:"+string(r.kind)+":"+token.OwnerID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM `+r.table+` WHERE owner_id = $1`, token.OwnerID); err != nil {
			return fmt.Errorf("delete prior %s tokens: %w", r.kind, err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO `+r.table+` (token, owner_id, issued_at, expires_at)
			 VALUES ($1, $2, $3, $4)`,
			token.Value, token.OwnerID, token.IssuedAt, token.ExpiresAt)
		if database.IsForeignKeyViolation(err) {
			return model.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("insert %s token: %w", r.kind, err)
		}
		return nil
	})
}

// Renew extends a live token to now+ttl in one conditional statement. A
// token that is present but past expiry is deleted and ErrTokenExpired is
// returned; an unknown value gives ErrTokenNotFound.
func (r *TokenRepository) Renew(ctx context.Context, value string, now time.Time, ttl time.Duration) (model.Token, error) {
	token := model.Token{Value: value, OwnerKind: r.kind}

	err := r.pool.QueryRow(ctx,
		`UPDATE `+r.table+` SET expires_at = $2
		 WHERE token = $1 AND expires_at >= $3
		 RETURNING owner_id, issued_at, expires_at`,
		value, now.Add(ttl), now).
		Scan(&token.OwnerID, &token.IssuedAt, &token.ExpiresAt)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Token{}, fmt.Errorf("renew %s token: %w", r.kind, err)
	}

	err = r.pool.QueryRow(ctx,
		`DELETE FROM `+r.table+` WHERE token = $1 AND expires_at < $2
		 RETURNING owner_id`, value, now).Scan(&token.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Token{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("delete expired %s token: %w", r.kind, err)
	}

	return model.Token{}, model.ErrTokenExpired
}

func (r *TokenRepository) Revoke(ctx context.Context, value string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE token = $1`, value)
	if err != nil {
		return false, fmt.Errorf("revoke %s token: %w", r.kind, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepository) CountForOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+r.table+` WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s tokens: %w", r.kind, err)
	}
	return count, nil
}

func (r *TokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired %s tokens: %w", r.kind, err)
	}
	return tag.RowsAffected(), nil
}
