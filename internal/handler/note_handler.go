package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

type NoteService interface {
	AddNote(ctx context.Context, staffID string, req model.AddNoteRequest) (model.RequirementNote, error)
	ListNotes(ctx context.Context, actor model.Principal, requestID string) ([]model.RequirementNote, error)
}

type NoteHandler struct {
	service NoteService
}

func NewNoteHandler(service NoteService) *NoteHandler {
	return &NoteHandler{service: service}
}

// Add serves POST /requests/notes. Only admins reach it; the author is
// always the caller.
func (h *NoteHandler) Add(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	var payload model.AddNoteRequest
	if err := decodeJSON(r, &payload); err != nil {
		return errorResponse(r, err)
	}

	note, err := h.service.AddNote(r.Context(), caller.ID, payload)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusCreated, note, nil)
}

func (h *NoteHandler) List(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	notes, err := h.service.ListNotes(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, notes, nil)
}
