package model

import (
	"fmt"
	"io"
	"strings"
	"time"
)

type RequestStatus string

const (
	StatusPending        RequestStatus = "pending"
	StatusInProgress     RequestStatus = "in_progress"
	StatusCompleted      RequestStatus = "completed"
	StatusRejected       RequestStatus = "rejected"
	StatusNeedsAttention RequestStatus = "needs_attention"
)

// ParseRequestStatus normalizes raw input and checks it against the statuses
// an admin may set. needs_attention is set by the system only.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	status := RequestStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

type Request struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	TypeID      int64             `json:"type_id"`
	TypeName    string            `json:"type_name,omitempty"`
	Status      RequestStatus     `json:"status"`
	FormData    map[string]string `json:"form_data"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type RequiredDocument struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	FieldName        string    `json:"field_name"`
	StoredFileName   string    `json:"stored_file_name"`
	OriginalFileName string    `json:"original_file_name"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Verified         bool      `json:"verified"`
	CreatedAt        time.Time `json:"created_at"`
}

type RequestDetail struct {
	Request
	Documents []RequiredDocument `json:"documents"`
}

// UploadedFile is one multipart file part. Complete is false when the part
// was truncated or could not be read.
type UploadedFile struct {
	FieldName   string
	FileName    string
	ContentType string
	Size        int64
	Complete    bool
	Open        func() (io.ReadCloser, error)
}

func (f UploadedFile) Extension() string {
	idx := strings.LastIndex(f.FileName, ".")
	if idx < 0 || idx == len(f.FileName)-1 {
		return ""
	}

	return NormalizeExtension(f.FileName[idx+1:])
}

type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
	Accepted []UploadedFile    `json:"-"`
	FormData map[string]string `json:"-"`
}

type CreateRequestResult struct {
	RequestID string   `json:"request_id"`
	Warnings  []string `json:"warnings,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type RequestListQuery struct {
	OwnerID string
	Status  string
	TypeID  int64
	Page    int
	Limit   int
}
