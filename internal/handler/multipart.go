package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"go-docrequest/internal/model"
	"go-docrequest/pkg/apierror"
)

const maxFieldValue = 64 << 10

// spooledForm is a multipart submission whose file parts have been copied
// to temporary files. Cleanup must be called once the request is done.
type spooledForm struct {
	fields map[string]string
	files  map[string]model.UploadedFile
	temps  []string
}

func (f *spooledForm) Cleanup() {
	for _, path := range f.temps {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove upload spool file", "path", path, "error", err)
		}
	}
}

// readMultipart streams the body part by part. The first value or file for
// a name wins. A file part that ends early is kept but marked incomplete,
// and reading stops there because the stream cannot be resumed.
func readMultipart(r *http.Request, maxSize int64, spoolDir string) (*spooledForm, error) {
	if r.ContentLength > maxSize {
		return nil, payloadTooLarge()
	}

	body := &limitedBody{ReadCloser: http.MaxBytesReader(nil, r.Body, maxSize)}
	r.Body = body

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, apierror.New("BAD_REQUEST", "invalid multipart body", "", http.StatusBadRequest)
	}

	form := &spooledForm{fields: map[string]string{}, files: map[string]model.UploadedFile{}}

	for {
		part, nextErr := reader.NextPart()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			form.Cleanup()
			if body.tooLarge(nextErr) {
				return nil, payloadTooLarge()
			}
			return nil, apierror.New("BAD_REQUEST", "invalid multipart stream", "", http.StatusBadRequest)
		}

		name := strings.TrimSpace(part.FormName())
		if name == "" {
			_ = part.Close()
			continue
		}

		if part.FileName() == "" {
			value, readErr := io.ReadAll(io.LimitReader(part, maxFieldValue))
			_ = part.Close()
			if readErr != nil {
				form.Cleanup()
				if body.tooLarge(readErr) {
					return nil, payloadTooLarge()
				}
				return nil, apierror.New("BAD_REQUEST", "invalid multipart stream", "", http.StatusBadRequest)
			}
			if _, seen := form.fields[name]; !seen {
				form.fields[name] = string(value)
			}
			continue
		}

		if _, seen := form.files[name]; seen {
			_ = part.Close()
			continue
		}

		file, complete, spoolErr := spool(part, spoolDir, form)
		_ = part.Close()
		if spoolErr != nil || body.exceeded {
			form.Cleanup()
			if body.tooLarge(spoolErr) {
				return nil, payloadTooLarge()
			}
			return nil, spoolErr
		}
		form.files[name] = file
		if !complete {
			break
		}
	}

	return form, nil
}

func spool(part *multipart.Part, dir string, form *spooledForm) (model.UploadedFile, bool, error) {
	tmp, err := os.CreateTemp(dir, "docrequest-upload-*")
	if err != nil {
		return model.UploadedFile{}, false, err
	}
	path := tmp.Name()
	form.temps = append(form.temps, path)

	size, copyErr := io.Copy(tmp, part)
	closeErr := tmp.Close()

	if copyErr != nil && isPayloadTooLarge(copyErr) {
		return model.UploadedFile{}, false, copyErr
	}
	if closeErr != nil {
		return model.UploadedFile{}, false, closeErr
	}

	complete := copyErr == nil && size > 0
	return model.UploadedFile{
		FieldName:   strings.TrimSpace(part.FormName()),
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Size:        size,
		Complete:    complete,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, copyErr == nil, nil
}

// limitedBody records that the size limit was hit. The multipart reader
// can surface that as a header parse error instead of the MaxBytesError.
type limitedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && isPayloadTooLarge(err) {
		b.exceeded = true
	}
	return n, err
}

func (b *limitedBody) tooLarge(err error) bool {
	return b.exceeded || (err != nil && isPayloadTooLarge(err))
}

func isPayloadTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

func payloadTooLarge() error {
	return apierror.New("PAYLOAD_TOO_LARGE", "request body exceeds MAX_UPLOAD_SIZE", "MAX_UPLOAD_SIZE", http.StatusRequestEntityTooLarge)
}
