package mime

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	enc := NewEncoder()
	enc.AddField("requestId", "req-1", WithHeader("Content-Type", "text/plain"))
	enc.AddFile("notes.txt", writeTempFile(t, "notes.txt", "line one\nline two"))
	enc.AddSource("logo.png", Bytes([]byte{0x89, 'P', 'N', 'G', '\r', '\n'}), WithFilename("logo.png"))

	var buf bytes.Buffer
	body := enc.Build()
	_, err := body.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	parts, err := Parse(&buf, enc.ContentType())
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.Equal(t, "requestId", parts[0].Name)
	assert.False(t, parts[0].IsFile())
	assert.Equal(t, "text/plain", parts[0].ContentType())
	assert.Equal(t, "req-1", string(parts[0].Data))

	assert.Equal(t, "notes.txt", parts[1].Name)
	assert.Equal(t, "notes.txt", parts[1].FileName)
	assert.Equal(t, "text/plain", parts[1].ContentType())
	assert.Equal(t, "line one\nline two", string(parts[1].Data))
	assert.Equal(t, "17", parts[1].Header.Get("Content-Length"))

	assert.True(t, parts[2].IsFile())
	assert.Equal(t, "image/png", parts[2].ContentType())
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n'}, parts[2].Data)
}

func TestParse_InvalidContentType(t *testing.T) {
	_, err := Parse(strings.NewReader("some data"), "text/plain")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not a multipart message")
}

func TestParse_MissingBoundary(t *testing.T) {
	_, err := Parse(strings.NewReader("some data"), "multipart/form-data")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boundary not found")
}

func TestParse_MalformedContentType(t *testing.T) {
	_, err := Parse(strings.NewReader(""), `multipart/form-data; boundary="unterminated`)
	assert.Error(t, err)
}

func TestParse_TruncatedBody(t *testing.T) {
	enc := NewEncoder()
	enc.AddField("a", "value")

	_, err := Parse(strings.NewReader("--"+enc.Boundary()+"\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nval"), enc.ContentType())
	assert.Error(t, err)
}
