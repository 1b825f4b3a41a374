package mime

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// Body streams an encoded multipart body. It implements io.ReadCloser and
// io.WriterTo; WriteTo copies content in chunks of the encoder's chunk size.
// Read and Close may be called from different goroutines, as net/http does
// when it writes a request body.
type Body struct {
	mu        sync.Mutex
	r         io.Reader
	contents  []*lazyContent
	chunkSize int
	closed    bool
}

func newBody(boundary string, parts []Part, chunkSize int) *Body {
	b := &Body{chunkSize: chunkSize}

	readers := make([]io.Reader, 0, len(parts)*3+1)
	for _, p := range parts {
		var head strings.Builder
		head.WriteString(dashes)
		head.WriteString(boundary)
		head.WriteString(crlf)
		p.Header.writeTo(&head)
		head.WriteString(crlf)

		content := &lazyContent{src: p.Source, chunkSize: chunkSize}
		b.contents = append(b.contents, content)

		readers = append(readers,
			strings.NewReader(head.String()),
			content,
			strings.NewReader(crlf),
		)
	}
	readers = append(readers, strings.NewReader(dashes+boundary+dashes+crlf))

	b.r = io.MultiReader(readers...)
	return b
}

// Read implements io.Reader
func (b *Body) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.New("read from closed multipart body")
	}
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.closeLocked()
	}
	return n, err
}

// WriteTo implements io.WriterTo
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, b.chunkSize)
	return io.CopyBuffer(w, struct{ io.Reader }{b}, buf)
}

// Close releases any file handle still held by the body. It is safe to
// call more than once.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Body) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for _, c := range b.contents {
		c.done = true
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lazyContent opens its source on first read and closes it as soon as the
// content is exhausted or fails.
type lazyContent struct {
	src       Source
	chunkSize int
	rc        io.ReadCloser
	done      bool
}

func (c *lazyContent) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.rc == nil {
		rc, err := c.src.Open()
		if err != nil {
			c.done = true
			return 0, err
		}
		c.rc = rc
	}

	if len(p) > c.chunkSize {
		p = p[:c.chunkSize]
	}
	n, err := c.rc.Read(p)
	if err != nil {
		c.done = true
		if cerr := c.close(); cerr != nil && err == io.EOF {
			err = cerr
		}
	}
	return n, err
}

func (c *lazyContent) close() error {
	if c.rc == nil {
		return nil
	}
	rc := c.rc
	c.rc = nil
	return rc.Close()
}
