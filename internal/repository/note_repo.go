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

// NoteWriter is the set of operations available inside a note transaction.
type NoteWriter interface {
	LockPair(ctx context.Context, requestID string, staffID string) error
	RequestOwner(ctx context.Context, requestID string) (string, error)
	NoteExists(ctx context.Context, requestID string, staffID string) (bool, error)
	InsertNote(ctx context.Context, note *model.RequirementNote) error
	SetStatus(ctx context.Context, requestID string, status model.RequestStatus, now time.Time) error
}

type NoteRepository struct {
	pool *pgxpool.Pool
}

func NewNoteRepository(pool *pgxpool.Pool) *NoteRepository {
	return &NoteRepository{pool: pool}
}

func (r *NoteRepository) InTx(ctx context.Context, fn func(NoteWriter) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(txNoteWriter{tx: tx})
	})
}

type txNoteWriter struct {
	tx pgx.Tx
}

// LockPair serializes writers for one (request, staff) pair until the
// transaction ends.
func (w txNoteWriter) LockPair(ctx context.Context, requestID string, staffID string) error {
	return database.LockKey(ctx, w.tx, "note:"+requestID+":"+staffID)
}

// RequestOwner locks the request row for the rest of the transaction and
// returns its owner.
func (w txNoteWriter) RequestOwner(ctx context.Context, requestID string) (string, error) {
	var owner string
	err := w.tx.QueryRow(ctx,
		`SELECT owner_id FROM requests WHERE id = $1 FOR UPDATE`, requestID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
		return "", model.ErrRequestNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock request: %w", err)
	}
	return owner, nil
}

func (w txNoteWriter) NoteExists(ctx context.Context, requestID string, staffID string) (bool, error) {
	var exists bool
	err := w.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM requirement_notes WHERE request_id = $1 AND staff_id = $2)`,
		requestID, staffID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing note: %w", err)
	}
	return exists, nil
}

func (w txNoteWriter) InsertNote(ctx context.Context, note *model.RequirementNote) error {
	err := w.tx.QueryRow(ctx,
		`INSERT INTO requirement_notes (request_id, staff_id, field_name, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		note.RequestID, note.StaffID, note.FieldName, note.Body, note.CreatedAt).Scan(&note.ID)
	if database.IsForeignKeyViolation(err) {
		return model.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (w txNoteWriter) SetStatus(ctx context.Context, requestID string, status model.RequestStatus, now time.Time) error {
	tag, err := w.tx.Exec(ctx,
		`UPDATE requests SET status = $2, updated_at = $3 WHERE id = $1`, requestID, status, now)
	if err != nil {
		return fmt.Errorf("set request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRequestNotFound
	}
	return nil
}

// ListByRequest returns notes newest first with the author's display name.
func (r *NoteRepository) ListByRequest(ctx context.Context, requestID string) ([]model.RequirementNote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT n.id, n.request_id::text, n.staff_id, COALESCE(a.display_name, ''), n.field_name, n.body, n.created_at
		 FROM requirement_notes n
		 LEFT JOIN admins a ON a.id = n.staff_id
		 WHERE n.request_id = $1
		 ORDER BY n.created_at DESC, n.id DESC`, requestID)
	if err != nil {
		if database.IsInvalidText(err) {
			return nil, model.ErrRequestNotFound
		}
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]model.RequirementNote, 0)
	for rows.Next() {
		var n model.RequirementNote
		if err := rows.Scan(&n.ID, &n.RequestID, &n.StaffID, &n.StaffName, &n.FieldName, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}

	return notes, rows.Err()
}
