package service

import (
	"context"
	"strings"
	"time"

	"go-docrequest/internal/event"
	"go-docrequest/internal/model"
	"go-docrequest/internal/repository"
	"go-docrequest/pkg/apierror"
)

const maxNoteBody = 4000

type NoteStore interface {
	InTx(ctx context.Context, fn func(repository.NoteWriter) error) error
	ListByRequest(ctx context.Context, requestID string) ([]model.RequirementNote, error)
}

type RequestReader interface {
	FindByID(ctx context.Context, id string) (model.Request, error)
}

// NoteService lets staff flag a missing or deficient requirement on a
// request. Each staff member may leave one note per request.
type NoteService struct {
	notes    NoteStore
	requests RequestReader
	bus      event.Bus
	now      func() time.Time
}

func NewNoteService(notes NoteStore, requests RequestReader, bus event.Bus) *NoteService {
	return &NoteService{
		notes:    notes,
		requests: requests,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddNote records the note and moves the request to needs_attention in the
// same transaction. A second note from the same staff member on the same
// request is a conflict whatever its content.
func (s *NoteService) AddNote(ctx context.Context, staffID string, req model.AddNoteRequest) (model.RequirementNote, error) {
	requestID := strings.TrimSpace(req.RequestID)
	fieldName := strings.TrimSpace(req.FieldName)
	body := strings.TrimSpace(req.Body)

	if requestID == "" {
		return model.RequirementNote{}, apierror.BadRequest("request_id is required", "")
	}
	if body == "" {
		return model.RequirementNote{}, apierror.BadRequest("body is required", "")
	}
	if len([]rune(body)) > maxNoteBody {
		return model.RequirementNote{}, apierror.BadRequest("body is too long", "")
	}
	if !validRequestID(requestID) {
		return model.RequirementNote{}, model.ErrRequestNotFound
	}

	note := model.RequirementNote{
		RequestID: requestID,
		StaffID:   staffID,
		FieldName: fieldName,
		Body:      body,
		CreatedAt: s.now(),
	}

	var owner string
	err := s.notes.InTx(ctx, func(w repository.NoteWriter) error {
		if err := w.LockPair(ctx, requestID, staffID); err != nil {
			return err
		}

		var err error
		owner, err = w.RequestOwner(ctx, requestID)
		if err != nil {
			return err
		}

		exists, err := w.NoteExists(ctx, requestID, staffID)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrNoteConflict
		}

		if err := w.InsertNote(ctx, &note); err != nil {
			return err
		}
		return w.SetStatus(ctx, requestID, model.StatusNeedsAttention, note.CreatedAt)
	})
	if err != nil {
		return model.RequirementNote{}, err
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.TypeNoteAdded,
			Payload: event.RequestPayload{
				RequestID: requestID,
				OwnerID:   owner,
				Status:    string(model.StatusNeedsAttention),
				FieldName: fieldName,
			},
			ActorKind: string(model.KindAdmin),
			ActorID:   staffID,
		})
	}

	return note, nil
}

// ListNotes returns the notes newest first. Students only see notes on
// their own requests.
func (s *NoteService) ListNotes(ctx context.Context, actor model.Principal, requestID string) ([]model.RequirementNote, error) {
	requestID = strings.TrimSpace(requestID)
	if !validRequestID(requestID) {
		return nil, model.ErrRequestNotFound
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.IsStudent() && req.OwnerID != actor.ID {
		return nil, model.ErrForbidden
	}

	return s.notes.ListByRequest(ctx, requestID)
}
