package service

import (
	"context"
	"fmt"
	"strings"

	"go-docrequest/internal/model"
)

type RequestTypeLookup interface {
	Active(ctx context.Context, id int64) (model.RequestType, error)
}

// SubmissionValidator checks a submission against the request type's
// requirements and reports every problem it finds.
type SubmissionValidator struct {
	types RequestTypeLookup
}

func NewSubmissionValidator(types RequestTypeLookup) *SubmissionValidator {
	return &SubmissionValidator{types: types}
}

// Validate never fails fast. Required problems become errors; an optional
// file with a disallowed extension becomes a warning and is dropped. Values
// and files the schema does not name are ignored.
func (v *SubmissionValidator) Validate(ctx context.Context, typeID int64, fields map[string]string, files map[string]model.UploadedFile) (model.ValidationResult, error) {
	rt, err := v.types.Active(ctx, typeID)
	if err != nil {
		return model.ValidationResult{}, err
	}

	result := model.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
		Accepted: []model.UploadedFile{},
		FormData: map[string]string{},
	}

	for _, field := range rt.Requirements.Fields {
		switch field.Kind {
		case model.FieldText:
			checkText(field, fields, &result)
		case model.FieldFile:
			checkFile(field, files, &result)
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

func checkText(field model.Field, fields map[string]string, result *model.ValidationResult) {
	value := strings.TrimSpace(fields[field.Name])
	if value == "" {
		if field.Required {
			result.Errors = append(result.Errors, fmt.Sprintf("%s is required", field.Label))
		}
		return
	}

	result.FormData[field.Name] = value
}

func checkFile(field model.Field, files map[string]model.UploadedFile, result *model.ValidationResult) {
	file, present := files[field.Name]

	if field.Required {
		if !present || !file.Complete {
			result.Errors = append(result.Errors, fmt.Sprintf("%s is required", field.Label))
			return
		}
		if !field.AllowsExtension(file.Extension()) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s must be one of: %s", field.Label, field.AllowedList()))
			return
		}
		result.Accepted = append(result.Accepted, file)
		return
	}

	if !present {
		return
	}
	if !file.Complete {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s could not be read and will be ignored", field.Label))
		return
	}
	if !field.AllowsExtension(file.Extension()) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s has an unsupported file type and will be ignored (allowed: %s)", field.Label, field.AllowedList()))
		return
	}
	result.Accepted = append(result.Accepted, file)
}
