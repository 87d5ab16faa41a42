package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-docrequest/internal/middleware"
	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
	"go-docrequest/internal/service"
	"go-docrequest/pkg/apierror"
)

var (
	testStudent = model.Principal{Kind: model.KindStudent, ID: "stu-1"}
	testAdmin   = model.Principal{Kind: model.KindAdmin, ID: "adm-1"}
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Login(ctx context.Context, kind model.PrincipalKind, credentialID string, password string) (model.LoginResult, error) {
	args := m.Called(ctx, kind, credentialID, password)
	return args.Get(0).(model.LoginResult), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, p model.Principal, kind model.PrincipalKind, value string) error {
	return m.Called(ctx, p, kind, value).Error(0)
}

func (m *mockAuthService) Me(ctx context.Context, p model.Principal) (model.PrincipalProfile, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.PrincipalProfile), args.Error(1)
}

type mockRequestService struct{ mock.Mock }

func (m *mockRequestService) Submit(ctx context.Context, actor model.Principal, sub service.Submission) (model.CreateRequestResult, error) {
	args := m.Called(ctx, actor, sub)
	return args.Get(0).(model.CreateRequestResult), args.Error(1)
}

func (m *mockRequestService) Get(ctx context.Context, actor model.Principal, id string) (model.RequestDetail, error) {
	args := m.Called(ctx, actor, id)
	return args.Get(0).(model.RequestDetail), args.Error(1)
}

func (m *mockRequestService) List(ctx context.Context, actor model.Principal, q model.RequestListQuery) ([]model.Request, model.Meta, error) {
	args := m.Called(ctx, actor, q)
	return args.Get(0).([]model.Request), args.Get(1).(model.Meta), args.Error(2)
}

func (m *mockRequestService) UpdateStatus(ctx context.Context, actor model.Principal, id string, raw string) (model.Request, error) {
	args := m.Called(ctx, actor, id, raw)
	return args.Get(0).(model.Request), args.Error(1)
}

func (m *mockRequestService) Delete(ctx context.Context, actor model.Principal, id string) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *mockRequestService) VerifyDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64, verified bool) (model.RequiredDocument, error) {
	args := m.Called(ctx, actor, requestID, documentID, verified)
	return args.Get(0).(model.RequiredDocument), args.Error(1)
}

func (m *mockRequestService) OpenDocument(ctx context.Context, actor model.Principal, requestID string, documentID int64) (model.RequiredDocument, io.ReadCloser, error) {
	args := m.Called(ctx, actor, requestID, documentID)
	var rc io.ReadCloser
	if v := args.Get(1); v != nil {
		rc = v.(io.ReadCloser)
	}
	return args.Get(0).(model.RequiredDocument), rc, args.Error(2)
}

type mockNoteService struct{ mock.Mock }

func (m *mockNoteService) AddNote(ctx context.Context, staffID string, req model.AddNoteRequest) (model.RequirementNote, error) {
	args := m.Called(ctx, staffID, req)
	return args.Get(0).(model.RequirementNote), args.Error(1)
}

func (m *mockNoteService) ListNotes(ctx context.Context, actor model.Principal, requestID string) ([]model.RequirementNote, error) {
	args := m.Called(ctx, actor, requestID)
	return args.Get(0).([]model.RequirementNote), args.Error(1)
}

type formCatalogFunc func(ctx context.Context, id int64) (model.SchemaForm, error)

func (f formCatalogFunc) Form(ctx context.Context, id int64) (model.SchemaForm, error) {
	return f(ctx, id)
}

// serve mounts h on a chi route and runs req through it, with caller
// attached as if the auth gate had run.
func serve(method, pattern string, h pipeline.HTTPHandler, caller *model.Principal, req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, pipeline.Serve(func(r *http.Request) pipeline.Response {
		if caller != nil {
			r = r.WithContext(middleware.WithPrincipal(r.Context(), *caller))
		}
		return h(r)
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns the token", func(t *testing.T) {
		svc := &mockAuthService{}
		svc.On("Login", mock.Anything, model.KindStudent, "2024-0001", "pw").
			Return(model.LoginResult{Token: "tok", Principal: testStudent}, nil)
		h := NewAuthHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/auth/student/login", strings.NewReader(`{"credential_id":"2024-0001","password":"pw"}`))
		rec := serve(http.MethodPost, "/auth/{role}/login", h.Login, nil, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token":"tok"`)
		svc.AssertExpectations(t)
	})

	t.Run("maps service errors", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{model.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
			{model.ErrAccountNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
			{model.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE"},
		}
		for _, tc := range cases {
			svc := &mockAuthService{}
			svc.On("Login", mock.Anything, model.KindAdmin, "x", "y").Return(model.LoginResult{}, tc.err)
			h := NewAuthHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/auth/admin/login", strings.NewReader(`{"credential_id":"x","password":"y"}`))
			rec := serve(http.MethodPost, "/auth/{role}/login", h.Login, nil, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeEnvelope(t, rec).Code)
		}
	})

	t.Run("unknown role and bad body", func(t *testing.T) {
		h := NewAuthHandler(&mockAuthService{})

		req := httptest.NewRequest(http.MethodPost, "/auth/guest/login", strings.NewReader(`{}`))
		rec := serve(http.MethodPost, "/auth/{role}/login", h.Login, nil, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/auth/admin/login", strings.NewReader(`{not json`))
		rec = serve(http.MethodPost, "/auth/{role}/login", h.Login, nil, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	t.Parallel()

	svc := &mockAuthService{}
	svc.On("Logout", mock.Anything, testAdmin, model.KindAdmin, "tok-1").Return(nil)
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/admin/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := serve(http.MethodPost, "/auth/{role}/logout", h.Logout, &testAdmin, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

type part struct {
	field, fileName, content string
}

func multipartBody(t *testing.T, fields map[string]string, files []part, closeWriter bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.content)
		require.NoError(t, err)
	}
	if closeWriter {
		require.NoError(t, w.Close())
	}
	return body, w.FormDataContentType()
}

func TestCreateRequestHandler(t *testing.T) {
	t.Parallel()

	t.Run("passes fields and files to the service", func(t *testing.T) {
		svc := &mockRequestService{}
		svc.On("Submit", mock.Anything, testStudent, mock.MatchedBy(func(sub service.Submission) bool {
			file, ok := sub.Files["valid_id"]
			if !ok || !file.Complete || file.FileName != "id.pdf" {
				return false
			}
			rc, err := file.Open()
			if err != nil {
				return false
			}
			defer rc.Close()
			content, _ := io.ReadAll(rc)

			_, hasType := sub.Fields["type_id"]
			return sub.TypeID == 3 && !hasType &&
				sub.Fields["full_name"] == "Ada" &&
				string(content) == "%PDF-1.7"
		})).Return(model.CreateRequestResult{RequestID: "0190f5f2-0000-7000-8000-000000000001"}, nil)

		h := NewRequestHandler(svc, 1<<20, t.TempDir())
		body, contentType := multipartBody(t,
			map[string]string{"type_id": "3", "full_name": "Ada"},
			[]part{{"valid_id", "id.pdf", "%PDF-1.7"}}, true)

		req := httptest.NewRequest(http.MethodPost, "/requests", body)
		req.Header.Set("Content-Type", contentType)
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"request_id":"0190f5f2-0000-7000-8000-000000000001"`)
		svc.AssertExpectations(t)
	})

	t.Run("validation errors are listed", func(t *testing.T) {
		svc := &mockRequestService{}
		svc.On("Submit", mock.Anything, testStudent, mock.Anything).
			Return(model.CreateRequestResult{}, apierror.ValidationFailed([]string{"Full Name is required", "Valid ID is required"}))

		h := NewRequestHandler(svc, 1<<20, t.TempDir())
		body, contentType := multipartBody(t, map[string]string{"type_id": "3"}, nil, true)

		req := httptest.NewRequest(http.MethodPost, "/requests", body)
		req.Header.Set("Content-Type", contentType)
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		envelope := decodeEnvelope(t, rec)
		assert.Equal(t, "error", envelope.Status)
		assert.Equal(t, []string{"Full Name is required", "Valid ID is required"}, envelope.Errors)
	})

	t.Run("missing type id", func(t *testing.T) {
		h := NewRequestHandler(&mockRequestService{}, 1<<20, t.TempDir())
		body, contentType := multipartBody(t, map[string]string{"full_name": "Ada"}, nil, true)

		req := httptest.NewRequest(http.MethodPost, "/requests", body)
		req.Header.Set("Content-Type", contentType)
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body over the limit", func(t *testing.T) {
		h := NewRequestHandler(&mockRequestService{}, 256, t.TempDir())
		body, contentType := multipartBody(t, map[string]string{"type_id": "3"},
			[]part{{"valid_id", "id.pdf", strings.Repeat("x", 4096)}}, true)

		req := httptest.NewRequest(http.MethodPost, "/requests", body)
		req.Header.Set("Content-Type", contentType)
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("streamed body over the limit", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"type_id": "3"},
			[]part{{"valid_id", "id.pdf", strings.Repeat("x", 4096)}}, true)
		raw := body.Bytes()

		cuts := map[string]int{
			"inside a part header": bytes.Index(raw, []byte(`name="valid_id"`)),
			"inside file content":  bytes.Index(raw, []byte("xxxx")) + 100,
		}
		for name, limit := range cuts {
			require.Positive(t, limit, name)
			h := NewRequestHandler(&mockRequestService{}, int64(limit), t.TempDir())

			req := httptest.NewRequest(http.MethodPost, "/requests", io.NopCloser(bytes.NewReader(raw)))
			req.ContentLength = -1
			req.Header.Set("Content-Type", contentType)
			rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, name)
			assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeEnvelope(t, rec).Code, name)
		}
	})

	t.Run("truncated file part is marked incomplete", func(t *testing.T) {
		svc := &mockRequestService{}
		svc.On("Submit", mock.Anything, testStudent, mock.MatchedBy(func(sub service.Submission) bool {
			file, ok := sub.Files["valid_id"]
			return ok && !file.Complete
		})).Return(model.CreateRequestResult{}, apierror.ValidationFailed([]string{"Valid ID is required"}))

		h := NewRequestHandler(svc, 1<<20, t.TempDir())
		body, contentType := multipartBody(t, map[string]string{"type_id": "3"},
			[]part{{"valid_id", "id.pdf", "%PDF-1.7 cut"}}, false)

		req := httptest.NewRequest(http.MethodPost, "/requests", body)
		req.Header.Set("Content-Type", contentType)
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("not multipart", func(t *testing.T) {
		h := NewRequestHandler(&mockRequestService{}, 1<<20, t.TempDir())
		req := httptest.NewRequest(http.MethodPost, "/requests", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(http.MethodPost, "/requests", h.Create, &testStudent, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateStatusHandler(t *testing.T) {
	t.Parallel()

	svc := &mockRequestService{}
	svc.On("UpdateStatus", mock.Anything, testAdmin, "req-1", "archived").
		Return(model.Request{}, model.ErrInvalidStatus)
	svc.On("UpdateStatus", mock.Anything, testAdmin, "req-2", "completed").
		Return(model.Request{}, model.ErrRequestNotFound)
	svc.On("UpdateStatus", mock.Anything, testAdmin, "req-3", "completed").
		Return(model.Request{ID: "req-3", Status: model.StatusCompleted}, nil)
	h := NewRequestHandler(svc, 1<<20, t.TempDir())

	cases := []struct {
		id, status string
		want       int
	}{
		{"req-1", "archived", http.StatusBadRequest},
		{"req-2", "completed", http.StatusNotFound},
		{"req-3", "completed", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/requests/"+tc.id, strings.NewReader(`{"status":"`+tc.status+`"}`))
		rec := serve(http.MethodPut, "/requests/{id}", h.UpdateStatus, &testAdmin, req)
		assert.Equal(t, tc.want, rec.Code, tc.id)
	}
}

func TestVerifyDocumentHandler(t *testing.T) {
	t.Parallel()

	svc := &mockRequestService{}
	svc.On("VerifyDocument", mock.Anything, testAdmin, "req-1", int64(7), true).
		Return(model.RequiredDocument{ID: 7, Verified: true}, nil)
	svc.On("VerifyDocument", mock.Anything, testAdmin, "req-1", int64(7), false).
		Return(model.RequiredDocument{ID: 7}, nil)
	h := NewRequestHandler(svc, 1<<20, t.TempDir())

	req := httptest.NewRequest(http.MethodPut, "/requests/req-1/documents/7/verify", nil)
	rec := serve(http.MethodPut, "/requests/{id}/documents/{doc_id}/verify", h.VerifyDocument, &testAdmin, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/requests/req-1/documents/7/verify", strings.NewReader(`{"verified":false}`))
	rec = serve(http.MethodPut, "/requests/{id}/documents/{doc_id}/verify", h.VerifyDocument, &testAdmin, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/requests/req-1/documents/abc/verify", nil)
	rec = serve(http.MethodPut, "/requests/{id}/documents/{doc_id}/verify", h.VerifyDocument, &testAdmin, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.AssertExpectations(t)
}

func TestDownloadHandler(t *testing.T) {
	t.Parallel()

	svc := &mockRequestService{}
	svc.On("OpenDocument", mock.Anything, testStudent, "req-1", int64(3)).
		Return(model.RequiredDocument{ID: 3, OriginalFileName: "request letter.pdf", ContentType: "application/pdf", SizeBytes: 8},
			io.NopCloser(strings.NewReader("%PDF-1.4")), nil)
	svc.On("OpenDocument", mock.Anything, testStudent, "req-2", int64(3)).
		Return(model.RequiredDocument{}, nil, model.ErrForbidden)
	h := NewRequestHandler(svc, 1<<20, t.TempDir())

	const pattern = "/requests/{id}/documents/{doc_id}"

	rec := serve(http.MethodGet, pattern, h.Download, &testStudent, httptest.NewRequest(http.MethodGet, "/requests/req-1/documents/3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="request letter.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = serve(http.MethodGet, pattern, h.Download, &testStudent, httptest.NewRequest(http.MethodGet, "/requests/req-2/documents/3", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(http.MethodGet, pattern, h.Download, &testStudent, httptest.NewRequest(http.MethodGet, "/requests/req-1/documents/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.AssertExpectations(t)
}

func TestNoteHandler(t *testing.T) {
	t.Parallel()

	payload := model.AddNoteRequest{RequestID: "req-1", FieldName: "valid_id", Body: "blurry"}
	svc := &mockNoteService{}
	svc.On("AddNote", mock.Anything, "adm-1", payload).Return(model.RequirementNote{ID: 1}, nil).Once()
	svc.On("AddNote", mock.Anything, "adm-1", payload).Return(model.RequirementNote{}, model.ErrNoteConflict).Once()
	h := NewNoteHandler(svc)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := serve(http.MethodPost, "/requests/notes", h.Add, &testAdmin,
		httptest.NewRequest(http.MethodPost, "/requests/notes", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(http.MethodPost, "/requests/notes", h.Add, &testAdmin,
		httptest.NewRequest(http.MethodPost, "/requests/notes", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOTE_EXISTS", decodeEnvelope(t, rec).Code)

	rec = serve(http.MethodPost, "/requests/notes", h.Add, nil,
		httptest.NewRequest(http.MethodPost, "/requests/notes", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.AssertExpectations(t)
}

func TestFormHandler(t *testing.T) {
	t.Parallel()

	h := NewFormHandler(formCatalogFunc(func(_ context.Context, id int64) (model.SchemaForm, error) {
		if id != 1 {
			return model.SchemaForm{}, model.ErrRequestTypeNotFound
		}
		return model.SchemaForm{
			TypeID:   1,
			Required: []model.Field{{Name: "full_name", Label: "Full Name", Kind: model.FieldText, Required: true}},
			Optional: []model.Field{},
		}, nil
	}))

	rec := serve(http.MethodGet, "/request-types/{id}/form", h.Get, &testStudent,
		httptest.NewRequest(http.MethodGet, "/request-types/1/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"required":[{"name":"full_name"`)

	for _, id := range []string{"2", "abc"} {
		rec = serve(http.MethodGet, "/request-types/{id}/form", h.Get, &testStudent,
			httptest.NewRequest(http.MethodGet, "/request-types/"+id+"/form", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	ok := HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}

	rec := serve(http.MethodGet, "/health", NewHealthHandler(ok).Health, nil, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodGet, "/health", NewHealthHandler(ok, down).Health, nil, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unavailable"`)
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestErrorResponseHidesInternalErrors(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	resp := errorResponse(req, errors.New("pq: relation /var/lib/secret does not exist"))

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	body := resp.Body.(model.APIResponse)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, body.Message, "secret")
	assert.Error(t, resp.Err)
}
