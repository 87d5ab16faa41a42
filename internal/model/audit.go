package model

import "time"

type AuditEntry struct {
	ID         int64          `json:"id"`
	Action     string         `json:"action"`
	ActorKind  string         `json:"actor_kind"`
	ActorID    string         `json:"actor_id"`
	Resource   string         `json:"resource"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type AuditQuery struct {
	Action   string
	ActorID  string
	Resource string
	From     string
	To       string
	Page     int
	Limit    int
}
