package pipeline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Response is the value an HTTP stage returns. Body is encoded as JSON by
// Serve unless it is an io.ReadCloser, which is copied as is and closed.
// Err is kept for logging and never sent to the client.
type Response struct {
	Status int
	Header http.Header
	Body   any
	Err    error
}

type (
	HTTPHandler     = Handler[*http.Request, Response]
	HTTPInterceptor = Interceptor[*http.Request, Response]
	HTTPPipeline    = Pipeline[*http.Request, Response]
)

func JSON(status int, body any) Response {
	return Response{Status: status, Body: body}
}

// Stream returns a response whose body is copied from rc.
func Stream(status int, contentType string, rc io.ReadCloser) Response {
	return Response{Status: status, Body: rc}.WithHeader("Content-Type", contentType)
}

func (r Response) WithHeader(key string, value string) Response {
	header := make(http.Header, len(r.Header)+1)
	for k, v := range r.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set(key, value)
	r.Header = header
	return r
}

func (r Response) WithErr(err error) Response {
	r.Err = err
	return r
}

// Serve is the only place a pipeline response reaches the wire.
func Serve(h HTTPHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		resp := h(req)
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}

		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}

		if rc, ok := resp.Body.(io.ReadCloser); ok {
			defer rc.Close()
			w.WriteHeader(status)
			if _, err := io.Copy(w, rc); err != nil {
				slog.Warn("stream response body", "error", err, "path", req.URL.Path)
			}
			return
		}

		if resp.Body == nil || status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}

		payload, err := json.Marshal(resp.Body)
		if err != nil {
			slog.Error("encode response body", "error", err, "path", req.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","code":"INTERNAL_ERROR","message":"Unexpected server error"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(append(payload, '\n'))
	})
}

// ServePipeline adapts a whole pipeline.
func ServePipeline(p *HTTPPipeline) http.Handler {
	return Serve(p.Handler())
}
