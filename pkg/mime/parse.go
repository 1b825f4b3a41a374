package mime

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FormPart is a decoded part of a multipart/form-data body
type FormPart struct {
	Name     string
	FileName string
	Header   textproto.MIMEHeader
	Data     []byte
}

// ContentType returns the part's Content-Type header
func (p FormPart) ContentType() string {
	return p.Header.Get("Content-Type")
}

// IsFile reports whether the part announced a filename
func (p FormPart) IsFile() bool {
	return p.FileName != ""
}

// Parse decodes a multipart body into its parts, in wire order. Part data
// is read into memory, so Parse is meant for bodies of bounded size.
func Parse(r io.Reader, contentType string) ([]FormPart, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type: %w", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("not a multipart message: %s", mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("boundary not found in content type")
	}

	reader := multipart.NewReader(r, boundary)
	parts := []FormPart{}

	for {
		part, err := reader.NextRawPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read part data: %w", err)
		}

		parts = append(parts, FormPart{
			Name:     part.FormName(),
			FileName: part.FileName(),
			Header:   part.Header,
			Data:     data,
		})
	}

	return parts, nil
}
