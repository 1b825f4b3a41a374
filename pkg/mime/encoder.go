package mime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/zimbra-api/upload-api/pkg/mimetype"
)

const (
	// ContentTypeMultipartFormData is the MIME type for multipart/form-data
	ContentTypeMultipartFormData = "multipart/form-data"

	// DefaultChunkSize bounds each copy of part content while streaming
	DefaultChunkSize = 1 << 20

	boundaryBytes = 20

	crlf   = "\r\n"
	dashes = "--"
)

// Part is one named section of a multipart body
type Part struct {
	Name   string
	Source Source
	Header Header
}

// PartOption customises a part when it is added
type PartOption func(*partOptions)

type partOptions struct {
	filename    string
	hasFilename bool
	header      Header
}

// WithFilename overrides the filename announced in Content-Disposition
func WithFilename(name string) PartOption {
	return func(o *partOptions) {
		o.filename = name
		o.hasFilename = true
	}
}

// WithHeader adds a caller supplied part header. Headers given this way
// win over the synthesized Content-Disposition, Content-Length and
// Content-Type defaults.
func WithHeader(name, value string) PartOption {
	return func(o *partOptions) {
		o.header.Set(name, value)
	}
}

// Encoder accumulates named parts and serializes them as a
// multipart/form-data body. An Encoder is used for a single upload; its
// boundary must not be reused across requests.
type Encoder struct {
	boundary  string
	parts     []Part
	chunkSize int
}

// NewEncoder creates an encoder with a fresh random boundary
func NewEncoder() *Encoder {
	return &Encoder{
		boundary:  generateBoundary(),
		chunkSize: DefaultChunkSize,
	}
}

// SetChunkSize changes the copy buffer size used while streaming
func (e *Encoder) SetChunkSize(n int) *Encoder {
	if n > 0 {
		e.chunkSize = n
	}
	return e
}

// Boundary returns the boundary token, stable for the encoder's lifetime
func (e *Encoder) Boundary() string {
	return e.boundary
}

// ContentType returns the request Content-Type header value for this body
func (e *Encoder) ContentType() string {
	return fmt.Sprintf(`%s; boundary="%s"`, ContentTypeMultipartFormData, e.boundary)
}

// Parts returns the parts added so far, in wire order
func (e *Encoder) Parts() []Part {
	parts := make([]Part, len(e.parts))
	copy(parts, e.parts)
	return parts
}

// AddField appends a plain form field
func (e *Encoder) AddField(name, value string, opts ...PartOption) *Encoder {
	return e.AddSource(name, String(value), opts...)
}

// AddFile appends the file at path. The filename defaults to the path's
// basename; the file itself is opened only when the body is streamed.
func (e *Encoder) AddFile(name, path string, opts ...PartOption) *Encoder {
	return e.AddSource(name, File(path), opts...)
}

// AddSource appends a part backed by src
func (e *Encoder) AddSource(name string, src Source, opts ...PartOption) *Encoder {
	var o partOptions
	for _, opt := range opts {
		opt(&o)
	}

	filename := o.filename
	if !o.hasFilename || filename == "" {
		filename = src.Filename()
	}

	e.parts = append(e.parts, Part{
		Name:   name,
		Source: src,
		Header: prepareHeader(name, src, filename, o.header),
	})
	return e
}

// AddResource appends a part from a string, []byte, io.Reader, *os.File
// or Source. Any other type fails with ErrInvalidInput and leaves the
// encoder unchanged.
func (e *Encoder) AddResource(name string, resource any, opts ...PartOption) error {
	src, err := toSource(resource)
	if err != nil {
		return err
	}
	e.AddSource(name, src, opts...)
	return nil
}

// ContentLength returns the exact size of the encoded body when the size
// of every part is known.
func (e *Encoder) ContentLength() (int64, bool) {
	delimiter := int64(len(dashes) + len(e.boundary) + len(crlf))

	var total int64
	for _, p := range e.parts {
		size, ok := p.Source.Size()
		if !ok {
			return 0, false
		}
		total += delimiter + int64(p.Header.encodedLen()) + int64(len(crlf)) + size + int64(len(crlf))
	}
	total += int64(len(dashes) + len(e.boundary) + len(dashes) + len(crlf))
	return total, true
}

// Build returns a stream over the encoded body. Part content is read lazily
// and in chunks, so large files are never held in memory. The caller must
// Close the body; closing releases any file opened for the current part.
func (e *Encoder) Build() *Body {
	return newBody(e.boundary, e.Parts(), e.chunkSize)
}

func prepareHeader(name string, src Source, filename string, header Header) Header {
	h := append(Header(nil), header...)
	hasFilename := filename != ""

	if !h.Has("Content-Disposition") {
		disposition := fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(name))
		if hasFilename {
			disposition += fmt.Sprintf(`; filename="%s"`, escapeQuotes(Basename(filename)))
		}
		h.Set("Content-Disposition", disposition)
	}

	if !h.Has("Content-Length") {
		if size, ok := src.Size(); ok && size > 0 {
			h.Set("Content-Length", strconv.FormatInt(size, 10))
		}
	}

	if !h.Has("Content-Type") && hasFilename {
		if ct, ok := mimetype.Lookup(filename); ok {
			h.Set("Content-Type", ct)
		}
	}

	return h
}

var lastSegment = regexp.MustCompile(`[^/` + regexp.QuoteMeta(string(os.PathSeparator)) + `]+$`)

// Basename strips trailing path separators and returns the final path
// segment. Unlike filepath.Base it returns "" for a path made only of
// separators.
func Basename(path string) string {
	path = strings.TrimRight(path, "/"+string(os.PathSeparator))
	return lastSegment.FindString(path)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func generateBoundary() string {
	buf := make([]byte, boundaryBytes)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
