package mime

import (
	"strings"
)

// HeaderField is a single part header line
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of part headers. Order is preserved on the
// wire, which is why a map based textproto.MIMEHeader is not used here.
type Header []HeaderField

// Get returns the first value for name, matched case-insensitively
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Has reports whether a header with name is present
func (h Header) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Set replaces the value of an existing header in place, or appends it
func (h *Header) Set(name, value string) {
	for i, f := range *h {
		if strings.EqualFold(f.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// encodedLen is the number of bytes the header lines occupy on the wire
func (h Header) encodedLen() int {
	n := 0
	for _, f := range h {
		n += len(f.Name) + len(": ") + len(f.Value) + len(crlf)
	}
	return n
}

func (h Header) writeTo(b *strings.Builder) {
	for _, f := range h {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString(crlf)
	}
}
