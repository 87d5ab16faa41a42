package pipeline

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingInterceptor(name string, trace *[]string) Interceptor[string, string] {
	return func(req string, next Handler[string, string]) string {
		*trace = append(*trace, name+":in")
		resp := next(req + ">" + name)
		*trace = append(*trace, name+":out")
		return resp
	}
}

func TestPipelineOrdering(t *testing.T) {
	t.Parallel()

	var trace []string
	p := New(func(req string) string {
		trace = append(trace, "terminal")
		return "done(" + req + ")"
	}, recordingInterceptor("first", &trace), recordingInterceptor("second", &trace))

	resp := p.Run("req")

	require.Equal(t, "done(req>first>second)", resp)
	require.Equal(t, []string{"first:in", "second:in", "terminal", "second:out", "first:out"}, trace)
}

func TestPipelineShortCircuit(t *testing.T) {
	t.Parallel()

	terminalCalled := false
	var trace []string

	gate := func(req string, next Handler[string, string]) string {
		return "denied"
	}

	p := New(func(string) string {
		terminalCalled = true
		return "ok"
	}, recordingInterceptor("outer", &trace), gate, recordingInterceptor("inner", &trace))

	require.Equal(t, "denied", p.Run("x"))
	require.False(t, terminalCalled)
	require.Equal(t, []string{"outer:in", "outer:out"}, trace)
}

func TestPipelineWithAndThen(t *testing.T) {
	t.Parallel()

	var trace []string
	base := New(func(req string) string { return req }, recordingInterceptor("a", &trace))
	extended := base.With(recordingInterceptor("b", &trace))

	require.Equal(t, "x>a>b", extended.Run("x"))
	require.Equal(t, "x>a", base.Run("x"), "base pipeline must be unchanged")

	swapped := base.Then(func(req string) string { return strings.ToUpper(req) })
	require.Equal(t, "X>A", swapped.Run("x"))
}

func TestPipelineSkipsNilInterceptors(t *testing.T) {
	t.Parallel()

	p := New(func(req string) string { return req }, nil)
	require.Equal(t, "x", p.Run("x"))
}

func TestServeWritesResponse(t *testing.T) {
	t.Parallel()

	handler := Serve(func(r *http.Request) Response {
		return JSON(http.StatusCreated, map[string]string{"path": r.URL.Path}).
			WithHeader("X-Test", "1").
			WithErr(errors.New("kept out of the body"))
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.JSONEq(t, `{"path":"/ping"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "kept out")
}

func TestServeEmptyBody(t *testing.T) {
	t.Parallel()

	handler := Serve(func(*http.Request) Response { return Response{} })
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestServeUnencodableBody(t *testing.T) {
	t.Parallel()

	handler := Serve(func(*http.Request) Response { return JSON(http.StatusOK, make(chan int)) })
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestWithHeaderDoesNotShareMaps(t *testing.T) {
	t.Parallel()

	base := JSON(http.StatusOK, nil).WithHeader("A", "1")
	derived := base.WithHeader("B", "2")

	assert.Empty(t, base.Header.Get("B"))
	assert.Equal(t, "1", derived.Header.Get("A"))
}

type closeTracker struct {
	*strings.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestServeStreamsReader(t *testing.T) {
	t.Parallel()

	body := &closeTracker{Reader: strings.NewReader("%PDF-1.4 bytes")}
	handler := Serve(func(*http.Request) Response {
		return Stream(http.StatusOK, "application/pdf", body).
			WithHeader("Content-Disposition", `attachment; filename="letter.pdf"`)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 bytes", rec.Body.String())
	assert.True(t, body.closed)
}
