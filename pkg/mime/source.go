package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidInput is returned when a resource of an unsupported type is
// added to an Encoder.
var ErrInvalidInput = errors.New("resource must be a string, []byte, io.Reader, *os.File or Source")

// Source is the content of one part. Open is called lazily while the body
// is streamed and the returned reader is closed once consumed.
type Source interface {
	// Open returns a reader positioned at the start of the content
	Open() (io.ReadCloser, error)
	// Size returns the content length when it is known up front
	Size() (int64, bool)
	// Filename returns the path the content came from, or "" for in-memory content
	Filename() string
}

// Bytes returns a Source for in-memory data
func Bytes(data []byte) Source {
	return bytesSource(data)
}

// String returns a Source for a string value
func String(s string) Source {
	return bytesSource(s)
}

// Reader returns a Source reading from r. Seekable readers are rewound
// before streaming; io.ReadCloser values are closed after streaming.
func Reader(r io.Reader) Source {
	return &readerSource{r: r}
}

// FileHandle returns a Source for an already open file. The encoder takes
// ownership of f and closes it once the content has been streamed.
func FileHandle(f *os.File) Source {
	return &readerSource{r: f}
}

// File returns a Source for the file at path. The file is not opened
// until the body reaches this part.
func File(path string) Source {
	return fileSource(path)
}

// toSource converts the supported resource types into a Source
func toSource(resource any) (Source, error) {
	switch v := resource.(type) {
	case Source:
		return v, nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case *os.File:
		if v == nil {
			return nil, fmt.Errorf("%w: nil *os.File", ErrInvalidInput)
		}
		return FileHandle(v), nil
	case io.Reader:
		return Reader(v), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidInput, resource)
	}
}

type bytesSource []byte

func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b bytesSource) Size() (int64, bool) {
	return int64(len(b)), true
}

func (b bytesSource) Filename() string {
	return ""
}

type readerSource struct {
	r io.Reader
}

func (s *readerSource) Open() (io.ReadCloser, error) {
	if seeker, ok := s.r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind content: %w", err)
		}
	}
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

func (s *readerSource) Size() (int64, bool) {
	switch v := s.r.(type) {
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return 0, false
		}
		return info.Size(), true
	case *bytes.Reader:
		return v.Size(), true
	case *strings.Reader:
		return v.Size(), true
	case interface{ Len() int }:
		return int64(v.Len()), true
	}
	return 0, false
}

func (s *readerSource) Filename() string {
	if named, ok := s.r.(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

type fileSource string

func (p fileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", string(p), err)
	}
	return f, nil
}

func (p fileSource) Size() (int64, bool) {
	info, err := os.Stat(string(p))
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

func (p fileSource) Filename() string {
	return string(p)
}
