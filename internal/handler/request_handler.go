package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
	"go-docrequest/internal/service"
	"go-docrequest/pkg/apierror"
)

type RequestService interface {
	Submit(ctx context.Context, actor model.Principal, sub service.Submission) (model.CreateRequestResult, error)
	Get(ctx context.Context, actor model.Principal, id string) (model.RequestDetail, error)
	List(ctx context.Context, actor model.Principal, query model.RequestListQuery) ([]model.Request, model.Meta, error)
	UpdateStatus(ctx context.Context, actor model.Principal, id string, raw string) (model.Request, error)
	Delete(ctx context.Context, actor model.Principal, id string) error
	VerifyDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64, verified bool) (model.RequiredDocument, error)
	OpenDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64) (model.RequiredDocument, io.ReadCloser, error)
}

type RequestHandler struct {
	service       RequestService
	maxUploadSize int64
	spoolDir      string
}

func NewRequestHandler(service RequestService, maxUploadSize int64, spoolDir string) *RequestHandler {
	return &RequestHandler{service: service, maxUploadSize: maxUploadSize, spoolDir: spoolDir}
}

// Create serves POST /requests. The control fields type_id and owner_id are
// taken out of the form; every other part is handed to validation.
func (h *RequestHandler) Create(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	form, err := readMultipart(r, h.maxUploadSize, h.spoolDir)
	if err != nil {
		return errorResponse(r, err)
	}
	defer form.Cleanup()

	rawType := strings.TrimSpace(form.fields["type_id"])
	if rawType == "" {
		rawType = strings.TrimSpace(r.URL.Query().Get("type_id"))
	}
	typeID, err := strconv.ParseInt(rawType, 10, 64)
	if err != nil || typeID <= 0 {
		return errorResponse(r, apierror.New("BAD_REQUEST", "type_id must be a positive integer", "type_id", http.StatusBadRequest))
	}

	ownerID := form.fields["owner_id"]
	delete(form.fields, "type_id")
	delete(form.fields, "owner_id")

	result, err := h.service.Submit(r.Context(), caller, service.Submission{
		OwnerID: ownerID,
		TypeID:  typeID,
		Fields:  form.fields,
		Files:   form.files,
	})
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusCreated, result, nil)
}

func (h *RequestHandler) List(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	query := r.URL.Query()
	typeID, _ := strconv.ParseInt(strings.TrimSpace(query.Get("type_id")), 10, 64)

	items, meta, err := h.service.List(r.Context(), caller, model.RequestListQuery{
		OwnerID: strings.TrimSpace(query.Get("owner_id")),
		Status:  strings.TrimSpace(query.Get("status")),
		TypeID:  typeID,
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 20),
	})
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, items, &meta)
}

func (h *RequestHandler) Get(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	detail, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, detail, nil)
}

func (h *RequestHandler) UpdateStatus(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	var payload model.UpdateStatusRequest
	if err := decodeJSON(r, &payload); err != nil {
		return errorResponse(r, err)
	}

	req, err := h.service.UpdateStatus(r.Context(), caller, chi.URLParam(r, "id"), payload.Status)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, req, nil)
}

func (h *RequestHandler) Delete(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	if err := h.service.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		return errorResponse(r, err)
	}

	return successMessage(http.StatusOK, "Request deleted")
}

// VerifyDocument serves PUT /requests/{id}/documents/{doc_id}/verify. An
// optional {"verified": false} body clears the flag.
func (h *RequestHandler) VerifyDocument(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	docID, err := strconv.ParseInt(chi.URLParam(r, "doc_id"), 10, 64)
	if err != nil || docID <= 0 {
		return errorResponse(r, model.ErrDocumentNotFound)
	}

	payload := struct {
		Verified *bool `json:"verified"`
	}{}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &payload); err != nil {
			return errorResponse(r, err)
		}
	}
	verified := payload.Verified == nil || *payload.Verified

	doc, err := h.service.VerifyDocument(r.Context(), caller, chi.URLParam(r, "id"), docID, verified)
	if err != nil {
		return errorResponse(r, err)
	}

	return success(http.StatusOK, doc, nil)
}

// Download serves GET /requests/{id}/documents/{doc_id} to the owner or an
// admin as an attachment.
func (h *RequestHandler) Download(r *http.Request) pipeline.Response {
	caller, ok := principal(r)
	if !ok {
		return unauthenticated()
	}

	docID, err := strconv.ParseInt(chi.URLParam(r, "doc_id"), 10, 64)
	if err != nil || docID <= 0 {
		return errorResponse(r, model.ErrDocumentNotFound)
	}

	doc, rc, err := h.service.OpenDocument(r.Context(), caller, chi.URLParam(r, "id"), docID)
	if err != nil {
		return errorResponse(r, err)
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp := pipeline.Stream(http.StatusOK, contentType, rc)
	if doc.SizeBytes > 0 {
		resp = resp.WithHeader("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	return resp.WithHeader("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalFileName}))
}
