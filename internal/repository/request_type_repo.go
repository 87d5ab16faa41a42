package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-docrequest/internal/model"
)

type RequestTypeRepository struct {
	pool *pgxpool.Pool
}

func NewRequestTypeRepository(pool *pgxpool.Pool) *RequestTypeRepository {
	return &RequestTypeRepository{pool: pool}
}

// FindByID returns inactive types too; callers decide what inactive means.
// The stored requirements are parsed here, once per load.
func (r *RequestTypeRepository) FindByID(ctx context.Context, id int64) (model.RequestType, error) {
	var (
		t   model.RequestType
		raw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, category, name, requirements, processing_time, is_active, updated_at
		 FROM request_types WHERE id = $1`, id).
		Scan(&t.ID, &t.Category, &t.Name, &raw, &t.ProcessingTime, &t.IsActive, &t.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RequestType{}, model.ErrRequestTypeNotFound
	}
	if err != nil {
		return model.RequestType{}, fmt.Errorf("find request type: %w", err)
	}

	schema, err := model.ParseRequirementSchema(raw)
	if err != nil {
		return model.RequestType{}, fmt.Errorf("request type %d: %w", id, err)
	}
	t.Requirements = schema

	return t, nil
}
