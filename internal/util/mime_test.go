package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/pdf", ContentTypeFor("Letter.PDF", "", nil))
	require.Equal(t, "image/png", ContentTypeFor("scan", "image/png; charset=binary", nil))
	require.Equal(t, "image/png", ContentTypeFor("scan", "application/octet-stream", []byte("\x89PNG\r\n\x1a\n")))
	require.Equal(t, "application/octet-stream", ContentTypeFor("scan", "", nil))
}

func TestStoredName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc.pdf", StoredName("abc", ".PDF"))
	require.Equal(t, "abc.jpg", StoredName("abc", "jpg"))
	require.Equal(t, "abc", StoredName("abc", " "))
	require.Equal(t, "abc", StoredName("abc", `jp\g`))
	require.Equal(t, "abc", StoredName("abc", "p\x01df"))
	require.Equal(t, "abc", StoredName("abc", "tar.gz"))
	require.Equal(t, "abc", StoredName("abc", strings.Repeat("x", 17)))
}
