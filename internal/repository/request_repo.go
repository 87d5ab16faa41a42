package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-docrequest/internal/database"
	"go-docrequest/internal/model"
)

// RequestWriter is the set of writes allowed inside a creation transaction.
type RequestWriter interface {
	InsertRequest(ctx context.Context, req model.Request) error
	InsertDocument(ctx context.Context, doc *model.RequiredDocument) error
}

type RequestRepository struct {
	pool *pgxpool.Pool
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

// InTx runs fn in one transaction. Nothing fn wrote is visible unless fn
// and the commit both succeed.
func (r *RequestRepository) InTx(ctx context.Context, fn func(RequestWriter) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(txRequestWriter{tx: tx})
	})
}

type txRequestWriter struct {
	tx pgx.Tx
}

func (w txRequestWriter) InsertRequest(ctx context.Context, req model.Request) error {
	formJSON, err := json.Marshal(nonNilForm(req.FormData))
	if err != nil {
		return fmt.Errorf("marshal form data: %w", err)
	}

	_, err = w.tx.Exec(ctx,
		`INSERT INTO requests (id, owner_id, type_id, status, form_data, submitted_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.OwnerID, req.TypeID, req.Status, formJSON, req.SubmittedAt, req.UpdatedAt)
	if database.IsForeignKeyViolation(err) {
		if strings.Contains(database.ConstraintName(err), "type_id") {
			return model.ErrRequestTypeNotFound
		}
		return model.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (w txRequestWriter) InsertDocument(ctx context.Context, doc *model.RequiredDocument) error {
	err := w.tx.QueryRow(ctx,
		`INSERT INTO required_documents
		 (request_id, field_name, stored_file_name, original_file_name, content_type, size_bytes, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		 RETURNING id`,
		doc.RequestID, doc.FieldName, doc.StoredFileName, doc.OriginalFileName,
		doc.ContentType, doc.SizeBytes, doc.CreatedAt).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("insert required document: %w", err)
	}
	return nil
}

const requestColumns = `r.id::text, r.owner_id, r.type_id, t.name, r.status, r.form_data, r.submitted_at, r.updated_at`

func scanRequest(row pgx.Row) (model.Request, error) {
	var (
		req      model.Request
		formJSON []byte
	)
	if err := row.Scan(&req.ID, &req.OwnerID, &req.TypeID, &req.TypeName, &req.Status,
		&formJSON, &req.SubmittedAt, &req.UpdatedAt); err != nil {
		return model.Request{}, err
	}

	req.FormData = map[string]string{}
	if len(formJSON) > 0 {
		if err := json.Unmarshal(formJSON, &req.FormData); err != nil {
			return model.Request{}, fmt.Errorf("decode form data: %w", err)
		}
	}
	return req, nil
}

func (r *RequestRepository) FindByID(ctx context.Context, id string) (model.Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+`
		 FROM requests r JOIN request_types t ON t.id = r.type_id
		 WHERE r.id = $1`, id))

	if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
		return model.Request{}, model.ErrRequestNotFound
	}
	if err != nil {
		return model.Request{}, fmt.Errorf("find request: %w", err)
	}
	return req, nil
}

func (r *RequestRepository) Documents(ctx context.Context, requestID string) ([]model.RequiredDocument, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, request_id::text, field_name, stored_file_name, original_file_name,
		        content_type, size_bytes, verified, created_at
		 FROM required_documents WHERE request_id = $1
		 ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query required documents: %w", err)
	}
	defer rows.Close()

	docs := make([]model.RequiredDocument, 0)
	for rows.Next() {
		var d model.RequiredDocument
		if err := rows.Scan(&d.ID, &d.RequestID, &d.FieldName, &d.StoredFileName, &d.OriginalFileName,
			&d.ContentType, &d.SizeBytes, &d.Verified, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan required document: %w", err)
		}
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (r *RequestRepository) List(ctx context.Context, query model.RequestListQuery) ([]model.Request, model.Meta, error) {
	query.Page, query.Limit = model.ClampPage(query.Page, query.Limit, 100)

	where := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if owner := strings.TrimSpace(query.OwnerID); owner != "" {
		where = append(where, fmt.Sprintf("r.owner_id = $%d", argIdx))
		args = append(args, owner)
		argIdx++
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		where = append(where, fmt.Sprintf("r.status = lower($%d)", argIdx))
		args = append(args, status)
		argIdx++
	}
	if query.TypeID > 0 {
		where = append(where, fmt.Sprintf("r.type_id = $%d", argIdx))
		args = append(args, query.TypeID)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM requests r "+whereClause, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count requests: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	dataQuery := fmt.Sprintf(
		`SELECT %s
		 FROM requests r JOIN request_types t ON t.id = r.type_id
		 %s
		 ORDER BY r.submitted_at DESC, r.id DESC
		 LIMIT $%d OFFSET $%d`, requestColumns, whereClause, argIdx, argIdx+1)
	args = append(args, query.Limit, (query.Page-1)*query.Limit)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	requests := make([]model.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, meta, rows.Err()
}

// UpdateStatus writes status unconditionally and returns the status it
// replaced.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status model.RequestStatus, now time.Time) (model.RequestStatus, error) {
	var previous model.RequestStatus
	err := r.pool.QueryRow(ctx,
		`UPDATE requests r SET status = $2, updated_at = $3
		 FROM (SELECT id, status FROM requests WHERE id = $1 FOR UPDATE) old
		 WHERE r.id = old.id
		 RETURNING old.status`, id, status, now).Scan(&previous)

	if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
		return "", model.ErrRequestNotFound
	}
	if err != nil {
		return "", fmt.Errorf("update request status: %w", err)
	}
	return previous, nil
}

// Delete removes the request; document and note rows go with it by
// cascade. The stored names of the removed documents are returned so the
// caller can drop the files.
func (r *RequestRepository) Delete(ctx context.Context, id string) ([]string, error) {
	var names []string

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT stored_file_name FROM required_documents WHERE request_id = $1`, id)
		if err != nil {
			if database.IsInvalidText(err) {
				return model.ErrRequestNotFound
			}
			return fmt.Errorf("list request documents: %w", err)
		}
		names, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			if database.IsInvalidText(err) {
				return model.ErrRequestNotFound
			}
			return fmt.Errorf("collect request documents: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrRequestNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

func (r *RequestRepository) SetDocumentVerified(ctx context.Context, requestID string, documentID int64, verified bool) (model.RequiredDocument, error) {
	var d model.RequiredDocument
	err := r.pool.QueryRow(ctx,
		`UPDATE required_documents SET verified = $3
		 WHERE request_id = $1 AND id = $2
		 RETURNING id, request_id::text, field_name, stored_file_name, original_file_name,
		           content_type, size_bytes, verified, created_at`,
		requestID, documentID, verified).
		Scan(&d.ID, &d.RequestID, &d.FieldName, &d.StoredFileName, &d.OriginalFileName,
			&d.ContentType, &d.SizeBytes, &d.Verified, &d.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidText(err) {
		return model.RequiredDocument{}, model.ErrDocumentNotFound
	}
	if err != nil {
		return model.RequiredDocument{}, fmt.Errorf("verify document: %w", err)
	}
	return d, nil
}

func (r *RequestRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requests`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

func nonNilForm(form map[string]string) map[string]string {
	if form == nil {
		return map[string]string{}
	}
	return form
}
