package util

import (
	"mime"
	"net/http"
	"regexp"
	"strings"
)

const defaultContentType = "application/octet-stream"

var storedExtPattern = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// ContentTypeFor prefers the type registered for the file extension, then
// the type the client declared, then sniffing of the first bytes.
func ContentTypeFor(fileName string, declared string, head []byte) string {
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		if byExt := mime.TypeByExtension(strings.ToLower(fileName[idx:])); byExt != "" {
			return stripParams(byExt)
		}
	}

	if cleaned := stripParams(declared); cleaned != "" && cleaned != defaultContentType {
		return cleaned
	}

	if len(head) > 0 {
		return stripParams(http.DetectContentType(head))
	}

	return defaultContentType
}

// StoredName builds the on-disk name for an upload from a unique id and the
// normalized extension of the original name. An extension that is not short
// lowercase alphanumerics is dropped.
func StoredName(id string, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if !storedExtPattern.MatchString(ext) {
		return id
	}

	return id + "." + ext
}

func stripParams(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return ""
	}

	return mediaType
}
