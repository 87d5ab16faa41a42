package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-docrequest/internal/database"
	"go-docrequest/internal/model"
)

var accountTables = map[model.PrincipalKind]string{
	model.KindAdmin:   "admins",
	model.KindStudent: "students",
}

const accountColumns = `id, credential_id, password_hash, display_name, email, is_active, created_at`

// AccountRepository reads the principal records owned by the registration
// subsystem. Create exists only for the bootstrap admin.
type AccountRepository struct {
	pool  *pgxpool.Pool
	kind  model.PrincipalKind
	table string
}

func NewAccountRepository(pool *pgxpool.Pool, kind model.PrincipalKind) (*AccountRepository, error) {
	table, ok := accountTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPrincipal, kind)
	}

	return &AccountRepository{pool: pool, kind: kind, table: table}, nil
}

func (r *AccountRepository) Kind() model.PrincipalKind {
	return r.kind
}

func (r *AccountRepository) FindByCredential(ctx context.Context, credentialID string) (model.Account, error) {
	return r.findOne(ctx, `lower(credential_id) = lower($1)`, strings.TrimSpace(credentialID))
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (model.Account, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *AccountRepository) findOne(ctx context.Context, where string, arg string) (model.Account, error) {
	a := model.Account{Kind: r.kind}
	err := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+r.table+` WHERE `+where, arg).
		Scan(&a.ID, &a.CredentialID, &a.PasswordHash, &a.DisplayName, &a.Email, &a.IsActive, &a.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find %s account: %w", r.kind, err)
	}
	return a, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+r.table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s accounts: %w", r.kind, err)
	}
	return count, nil
}

func (r *AccountRepository) Create(ctx context.Context, a model.Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+r.table+` (id, credential_id, password_hash, display_name, email, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.CredentialID, a.PasswordHash, a.DisplayName, a.Email, a.IsActive, a.CreatedAt)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s account %q already exists", model.ErrInvalidInput, r.kind, a.CredentialID)
	}
	if err != nil {
		return fmt.Errorf("create %s account: %w", r.kind, err)
	}
	return nil
}
