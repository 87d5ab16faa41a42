package storage

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"go-docrequest/pkg/apierror"
)

// PathValidator maps stored document names onto the storage root. Names are
// a single path segment; the validator places them in a two character shard
// directory so one directory never holds every upload.
type PathValidator struct {
	rootAbs string
}

func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	return &PathValidator{rootAbs: rootAbs}, nil
}

func (v *PathValidator) RootAbs() string {
	return v.rootAbs
}

func (v *PathValidator) ResolveName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "." || trimmed == ".." {
		return "", apierror.New("INVALID_NAME", "stored name is empty or reserved", name, http.StatusBadRequest)
	}

	if strings.ContainsAny(trimmed, `/\`) {
		return "", apierror.New("PATH_TRAVERSAL", "stored name must not contain separators", name, http.StatusForbidden)
	}

	if hasControlCharacters(trimmed) {
		return "", apierror.New("INVALID_NAME", "stored name contains invalid characters", name, http.StatusBadRequest)
	}

	resolved := filepath.Join(v.rootAbs, shard(trimmed), trimmed)
	if !isWithinRoot(v.rootAbs, resolved) {
		return "", apierror.New("PATH_TRAVERSAL", "resolved path is outside storage root", name, http.StatusForbidden)
	}

	return resolved, nil
}

func shard(name string) string {
	prefix := strings.ToLower(name)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	if prefix == "." || prefix == ".." || strings.HasPrefix(prefix, ".") {
		return "_"
	}

	return prefix
}

func hasControlCharacters(value string) bool {
	for _, char := range value {
		if unicode.IsControl(char) {
			return true
		}
	}

	return false
}

func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if candidateAbs == rootAbs {
		return true
	}

	return strings.HasPrefix(candidateAbs, rootAbs+string(filepath.Separator))
}
