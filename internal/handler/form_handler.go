package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

type FormCatalog interface {
	Form(ctx context.Context, id int64) (model.SchemaForm, error)
}

type FormHandler struct {
	catalog FormCatalog
}

func NewFormHandler(catalog FormCatalog) *FormHandler {
	return &FormHandler{catalog: catalog}
}

// Get serves GET /request-types/{id}/form and its alias
// GET /requests/{id}/form with the fields split into required and optional
// lists.
func (h *FormHandler) Get(r *http.Request) pipeline.Response {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil {
		return errorResponse(r, model.ErrRequestTypeNotFound)
	}

	form, err := h.catalog.Form(r.Context(), id)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, form, nil)
}
