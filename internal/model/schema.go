package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

type FieldKind string

const (
	FieldText FieldKind = "text"
	FieldFile FieldKind = "file"
)

type Field struct {
	Name              string    `json:"name"`
	Label             string    `json:"label"`
	Kind              FieldKind `json:"type"`
	Required          bool      `json:"required"`
	AllowedExtensions []string  `json:"allowed_extensions,omitempty"`
	Description       string    `json:"description,omitempty"`
}

// AllowsExtension compares case-insensitively and ignores a leading dot.
// A file field without an extension list accepts any file.
func (f Field) AllowsExtension(ext string) bool {
	if len(f.AllowedExtensions) == 0 {
		return true
	}

	return slices.Contains(f.AllowedExtensions, NormalizeExtension(ext))
}

func (f Field) AllowedList() string {
	return strings.Join(f.AllowedExtensions, ", ")
}

// RequirementSchema is the typed form of a request type's requirements. It
// is built once by ParseRequirementSchema and never re-interpreted.
type RequirementSchema struct {
	Fields []Field `json:"fields"`
}

func (s RequirementSchema) Required() []Field {
	return s.filter(true)
}

func (s RequirementSchema) Optional() []Field {
	return s.filter(false)
}

func (s RequirementSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Field{}, false
}

func (s RequirementSchema) filter(required bool) []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required == required {
			out = append(out, f)
		}
	}

	return out
}

type SchemaForm struct {
	TypeID   int64   `json:"type_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Required []Field `json:"required"`
	Optional []Field `json:"optional"`
}

type RequestType struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	Requirements   RequirementSchema `json:"requirements"`
	ProcessingTime string            `json:"processing_time"`
	IsActive       bool              `json:"is_active"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (t RequestType) Form() SchemaForm {
	return SchemaForm{
		TypeID:   t.ID,
		Name:     t.Name,
		Category: t.Category,
		Required: t.Requirements.Required(),
		Optional: t.Requirements.Optional(),
	}
}

type rawField struct {
	Name              string          `json:"name"`
	Label             string          `json:"label"`
	Type              string          `json:"type"`
	Kind              string          `json:"kind"`
	Required          *bool           `json:"required"`
	AllowedExtensions json.RawMessage `json:"allowed_extensions"`
	AllowedTypes      json.RawMessage `json:"allowed_types"`
	Description       string          `json:"description"`
}

type rawSchema struct {
	Fields   []rawField `json:"fields"`
	Required []rawField `json:"required"`
	Optional []rawField `json:"optional"`
}

// ParseRequirementSchema accepts either {"fields":[...]} or the split
// {"required":[...],"optional":[...]} layout. A bare JSON array is treated as
// the fields list.
func ParseRequirementSchema(raw []byte) (RequirementSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RequirementSchema{Fields: []Field{}}, nil
	}

	var doc rawSchema
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Fields); err != nil {
			return RequirementSchema{}, fmt.Errorf("%w: %v", ErrMalformedSchema, err)
		}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return RequirementSchema{}, fmt.Errorf("%w: %v", ErrMalformedSchema, err)
	}

	schema := RequirementSchema{Fields: make([]Field, 0, len(doc.Fields)+len(doc.Required)+len(doc.Optional))}
	seen := map[string]struct{}{}

	add := func(rf rawField, forced *bool) error {
		field, err := rf.toField(forced)
		if err != nil {
			return err
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrMalformedSchema, field.Name)
		}
		seen[field.Name] = struct{}{}
		schema.Fields = append(schema.Fields, field)
		return nil
	}

	yes, no := true, false
	for _, rf := range doc.Fields {
		if err := add(rf, nil); err != nil {
			return RequirementSchema{}, err
		}
	}
	for _, rf := range doc.Required {
		if err := add(rf, &yes); err != nil {
			return RequirementSchema{}, err
		}
	}
	for _, rf := range doc.Optional {
		if err := add(rf, &no); err != nil {
			return RequirementSchema{}, err
		}
	}

	return schema, nil
}

func (rf rawField) toField(forcedRequired *bool) (Field, error) {
	name := strings.TrimSpace(rf.Name)
	if name == "" {
		return Field{}, fmt.Errorf("%w: field without name", ErrMalformedSchema)
	}

	kindRaw := rf.Type
	if kindRaw == "" {
		kindRaw = rf.Kind
	}

	var kind FieldKind
	switch strings.ToLower(strings.TrimSpace(kindRaw)) {
	case "", "text", "string", "textarea":
		kind = FieldText
	case "file", "upload", "document":
		kind = FieldFile
	default:
		return Field{}, fmt.Errorf("%w: field %q has unknown type %q", ErrMalformedSchema, name, kindRaw)
	}

	required := false
	if rf.Required != nil {
		required = *rf.Required
	}
	if forcedRequired != nil {
		required = *forcedRequired
	}

	extRaw := rf.AllowedExtensions
	if len(extRaw) == 0 {
		extRaw = rf.AllowedTypes
	}
	extensions, err := parseExtensions(extRaw)
	if err != nil {
		return Field{}, fmt.Errorf("%w: field %q: %v", ErrMalformedSchema, name, err)
	}
	if kind == FieldText {
		extensions = nil
	}

	label := strings.TrimSpace(rf.Label)
	if label == "" {
		label = humanize(name)
	}

	return Field{
		Name:              name,
		Label:             label,
		Kind:              kind,
		Required:          required,
		AllowedExtensions: extensions,
		Description:       strings.TrimSpace(rf.Description),
	}, nil
}

// parseExtensions accepts a JSON list or a comma separated string.
func parseExtensions(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var items []string
	if trimmed[0] == '"' {
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return nil, err
		}
		items = strings.Split(joined, ",")
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("allowed extensions must be a list or a comma separated string")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		ext := NormalizeExtension(item)
		if ext == "" || slices.Contains(out, ext) {
			continue
		}
		out = append(out, ext)
	}

	return out, nil
}

// NormalizeExtension lowercases and strips surrounding space and a leading dot.
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

func humanize(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || unicode.IsSpace(r) })
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	return strings.Join(words, " ")
}
