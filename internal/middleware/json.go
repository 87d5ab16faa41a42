package middleware

import (
	"encoding/json"
	"net/http"

	"go-docrequest/internal/model"
	"go-docrequest/internal/pipeline"
)

func reject(status int, code string, message string) pipeline.Response {
	return pipeline.JSON(status, model.APIResponse{
		Status:  model.ResponseError,
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
