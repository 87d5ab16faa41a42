package event

import "time"

type Type string

const (
	TypeRequestCreated       Type = "request.created"
	TypeRequestStatusChanged Type = "request.status_changed"
	TypeRequestDeleted       Type = "request.deleted"
	TypeDocumentVerified     Type = "document.verified"
	TypeNoteAdded            Type = "note.added"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	ActorKind string    `json:"actor_kind,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// RequestPayload describes the request an event is about. Recipient is the
// owning student, who is notified of changes.
type RequestPayload struct {
	RequestID      string   `json:"request_id"`
	OwnerID        string   `json:"owner_id"`
	TypeID         int64    `json:"type_id,omitempty"`
	Status         string   `json:"status,omitempty"`
	PreviousStatus string   `json:"previous_status,omitempty"`
	DocumentID     int64    `json:"document_id,omitempty"`
	FieldName      string   `json:"field_name,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Bus fans out events to subscribers. Publish never blocks the caller.
type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
