package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-docrequest/internal/event"
	"go-docrequest/internal/metrics"
	"go-docrequest/internal/model"
	"go-docrequest/internal/repository"
	"go-docrequest/internal/storage"
	"go-docrequest/internal/util"
	"go-docrequest/pkg/apierror"
)

const sniffLen = 512

type RequestStore interface {
	InTx(ctx context.Context, fn func(repository.RequestWriter) error) error
	FindByID(ctx context.Context, id string) (model.Request, error)
	Documents(ctx context.Context, requestID string) ([]model.RequiredDocument, error)
	List(ctx context.Context, query model.RequestListQuery) ([]model.Request, model.Meta, error)
	UpdateStatus(ctx context.Context, id string, status model.RequestStatus, now time.Time) (model.RequestStatus, error)
	Delete(ctx context.Context, id string) ([]string, error)
	SetDocumentVerified(ctx context.Context, requestID string, documentID int64, verified bool) (model.RequiredDocument, error)
}

// Submission is a parsed create-request call before validation.
type Submission struct {
	OwnerID string
	TypeID  int64
	Fields  map[string]string
	Files   map[string]model.UploadedFile
}

type RequestService struct {
	store     RequestStore
	files     storage.Store
	validator *SubmissionValidator
	bus       event.Bus
	metrics   *metrics.Registry
	now       func() time.Time
	newID     func() (uuid.UUID, error)
}

func NewRequestService(store RequestStore, files storage.Store, validator *SubmissionValidator, bus event.Bus, m *metrics.Registry) *RequestService {
	return &RequestService{
		store:     store,
		files:     files,
		validator: validator,
		bus:       bus,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewV7,
	}
}

// Submit resolves the owner, validates the submission and creates the
// request. A student may only submit for themself; an admin submits on
// behalf of the student named by OwnerID.
func (s *RequestService) Submit(ctx context.Context, actor model.Principal, sub Submission) (model.CreateRequestResult, error) {
	owner := strings.TrimSpace(sub.OwnerID)
	switch actor.Kind {
	case model.KindStudent:
		if owner != "" && owner != actor.ID {
			return model.CreateRequestResult{}, model.ErrForbidden
		}
		owner = actor.ID
	case model.KindAdmin:
		if owner == "" {
			return model.CreateRequestResult{}, apierror.BadRequest("owner_id is required", "admins submit on behalf of a student")
		}
	default:
		return model.CreateRequestResult{}, model.ErrForbidden
	}

	result, err := s.validator.Validate(ctx, sub.TypeID, sub.Fields, sub.Files)
	if err != nil {
		return model.CreateRequestResult{}, err
	}
	if !result.IsValid {
		s.metrics.IncValidationRejected()
		return model.CreateRequestResult{}, apierror.ValidationFailed(result.Errors)
	}

	id, err := s.Create(ctx, owner, sub.TypeID, result.FormData, result.Accepted)
	if err != nil {
		return model.CreateRequestResult{}, err
	}

	s.publish(actor, event.TypeRequestCreated, event.RequestPayload{
		RequestID: id,
		OwnerID:   owner,
		TypeID:    sub.TypeID,
		Status:    string(model.StatusPending),
		Warnings:  result.Warnings,
	})

	return model.CreateRequestResult{RequestID: id, Warnings: result.Warnings}, nil
}

// Create inserts the request and one document row per accepted file in a
// single transaction. If anything fails, including the commit, every file
// written for the request is removed again.
func (s *RequestService) Create(ctx context.Context, ownerID string, typeID int64, formData map[string]string, accepted []model.UploadedFile) (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}

	now := s.now()
	req := model.Request{
		ID:          id.String(),
		OwnerID:     ownerID,
		TypeID:      typeID,
		Status:      model.StatusPending,
		FormData:    formData,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	var written []string
	err = s.store.InTx(ctx, func(w repository.RequestWriter) error {
		if err := w.InsertRequest(ctx, req); err != nil {
			return err
		}

		for _, file := range accepted {
			doc, err := s.persist(ctx, req.ID, file, now, &written)
			if err != nil {
				return err
			}
			if err := w.InsertDocument(ctx, &doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensate(req.ID, written)
		return "", err
	}

	s.metrics.IncRequestsCreated()
	slog.Info("request created", "request_id", req.ID, "owner_id", ownerID, "type_id", typeID, "documents", len(written))
	return req.ID, nil
}

// persist writes one upload under a fresh name. The name is recorded in
// written before the write starts so a partial file is also cleaned up.
func (s *RequestService) persist(ctx context.Context, requestID string, file model.UploadedFile, now time.Time, written *[]string) (model.RequiredDocument, error) {
	if file.Open == nil {
		return model.RequiredDocument{}, fmt.Errorf("%w: upload %q has no content", model.ErrStorage, file.FieldName)
	}

	src, err := file.Open()
	if err != nil {
		return model.RequiredDocument{}, fmt.Errorf("%w: open upload %q: %v", model.ErrStorage, file.FieldName, err)
	}
	defer src.Close()

	buffered := bufio.NewReaderSize(src, sniffLen)
	head, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return model.RequiredDocument{}, fmt.Errorf("%w: read upload %q: %v", model.ErrStorage, file.FieldName, err)
	}

	original := util.SanitizeOriginalName(file.FileName)
	stored := util.StoredName(uuid.NewString(), path.Ext(original))
	*written = append(*written, stored)

	size, err := s.files.Save(ctx, stored, buffered)
	if err != nil {
		return model.RequiredDocument{}, fmt.Errorf("%w: save upload %q: %v", model.ErrStorage, file.FieldName, err)
	}

	return model.RequiredDocument{
		RequestID:        requestID,
		FieldName:        file.FieldName,
		StoredFileName:   stored,
		OriginalFileName: original,
		ContentType:      util.ContentTypeFor(original, file.ContentType, head),
		SizeBytes:        size,
		CreatedAt:        now,
	}, nil
}

func (s *RequestService) compensate(requestID string, names []string) {
	for _, name := range names {
		if err := s.files.Remove(name); err != nil {
			slog.Error("failed to remove orphaned upload", "request_id", requestID, "file", name, "error", err)
		}
	}
}

func (s *RequestService) Get(ctx context.Context, actor model.Principal, id string) (model.RequestDetail, error) {
	req, err := s.visible(ctx, actor, id)
	if err != nil {
		return model.RequestDetail{}, err
	}

	docs, err := s.store.Documents(ctx, req.ID)
	if err != nil {
		return model.RequestDetail{}, err
	}

	return model.RequestDetail{Request: req, Documents: docs}, nil
}

// List scopes students to their own requests regardless of the filter.
func (s *RequestService) List(ctx context.Context, actor model.Principal, query model.RequestListQuery) ([]model.Request, model.Meta, error) {
	if actor.IsStudent() {
		query.OwnerID = actor.ID
	}

	// needs_attention cannot be set by an admin but can be filtered on.
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := model.RequestStatus(strings.ToLower(raw))
		if status != model.StatusNeedsAttention {
			if _, err := model.ParseRequestStatus(raw); err != nil {
				return nil, model.Meta{}, err
			}
		}
		query.Status = string(status)
	}

	return s.store.List(ctx, query)
}

// UpdateStatus sets any status in the admin vocabulary. There is no
// transition graph; the previous status is only reported in the event.
func (s *RequestService) UpdateStatus(ctx context.Context, actor model.Principal, id string, raw string) (model.Request, error) {
	status, err := model.ParseRequestStatus(raw)
	if err != nil {
		return model.Request{}, err
	}
	if !validRequestID(id) {
		return model.Request{}, model.ErrRequestNotFound
	}

	previous, err := s.store.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		return model.Request{}, err
	}

	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.Request{}, err
	}

	s.publish(actor, event.TypeRequestStatusChanged, event.RequestPayload{
		RequestID:      req.ID,
		OwnerID:        req.OwnerID,
		TypeID:         req.TypeID,
		Status:         string(status),
		PreviousStatus: string(previous),
	})

	return req, nil
}

// Delete removes the request and its rows, then the backing files. A file
// that cannot be removed is logged and left behind.
func (s *RequestService) Delete(ctx context.Context, actor model.Principal, id string) error {
	if !validRequestID(id) {
		return model.ErrRequestNotFound
	}

	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	names, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := s.files.Remove(name); err != nil {
			slog.Warn("failed to remove document file", "request_id", id, "file", name, "error", err)
		}
	}

	s.publish(actor, event.TypeRequestDeleted, event.RequestPayload{
		RequestID: req.ID,
		OwnerID:   req.OwnerID,
		TypeID:    req.TypeID,
		Status:    string(req.Status),
	})

	return nil
}

func (s *RequestService) VerifyDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64, verified bool) (model.RequiredDocument, error) {
	if !validRequestID(requestID) {
		return model.RequiredDocument{}, model.ErrRequestNotFound
	}

	req, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		return model.RequiredDocument{}, err
	}

	doc, err := s.store.SetDocumentVerified(ctx, requestID, documentID, verified)
	if err != nil {
		return model.RequiredDocument{}, err
	}

	if verified {
		s.publish(actor, event.TypeDocumentVerified, event.RequestPayload{
			RequestID:  req.ID,
			OwnerID:    req.OwnerID,
			TypeID:     req.TypeID,
			DocumentID: doc.ID,
			FieldName:  doc.FieldName,
		})
	}

	return doc, nil
}

// OpenDocument returns a document of a request the actor may read together
// with its bytes. The caller closes the reader.
func (s *RequestService) OpenDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64) (model.RequiredDocument, io.ReadCloser, error) {
	req, err := s.visible(ctx, actor, requestID)
	if err != nil {
		return model.RequiredDocument{}, nil, err
	}

	docs, err := s.store.Documents(ctx, req.ID)
	if err != nil {
		return model.RequiredDocument{}, nil, err
	}

	for _, doc := range docs {
		if doc.ID != documentID {
			continue
		}

		rc, err := s.files.Open(doc.StoredFileName)
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("document row without stored file", "request_id", req.ID, "document_id", doc.ID)
			return model.RequiredDocument{}, nil, model.ErrDocumentNotFound
		}
		if err != nil {
			return model.RequiredDocument{}, nil, fmt.Errorf("%w: open %s: %v", model.ErrStorage, doc.StoredFileName, err)
		}
		return doc, rc, nil
	}

	return model.RequiredDocument{}, nil, model.ErrDocumentNotFound
}

// visible loads a request the actor may read: admins read any, students
// only their own.
func (s *RequestService) visible(ctx context.Context, actor model.Principal, id string) (model.Request, error) {
	if !validRequestID(id) {
		return model.Request{}, model.ErrRequestNotFound
	}

	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.Request{}, err
	}
	if actor.IsStudent() && req.OwnerID != actor.ID {
		return model.Request{}, model.ErrForbidden
	}

	return req, nil
}

func (s *RequestService) publish(actor model.Principal, typ event.Type, payload event.RequestPayload) {
	if s.bus == nil {
		return
	}

	s.bus.Publish(event.Event{
		Type:      typ,
		Payload:   payload,
		ActorKind: string(actor.Kind),
		ActorID:   actor.ID,
	})
}

func validRequestID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
