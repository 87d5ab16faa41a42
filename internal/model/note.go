package model

import "time"

type RequirementNote struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	StaffID   string    `json:"staff_id"`
	StaffName string    `json:"staff_name,omitempty"`
	FieldName string    `json:"field_name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type AddNoteRequest struct {
	RequestID string `json:"request_id"`
	FieldName string `json:"field_name"`
	Body      string `json:"body"`
}
