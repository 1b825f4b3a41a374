package message

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Cookie names accepted by the upload servlet
const (
	AccountAuthTokenCookie = "ZM_AUTH_TOKEN"
	AdminAuthTokenCookie   = "ZM_ADMIN_AUTH_TOKEN"
)

// AuthContext supplies a ready-made Cookie header value
type AuthContext interface {
	Cookie() string
}

// AuthToken is an AuthContext built from a raw auth token
type AuthToken struct {
	Token string
	Admin bool
}

// Cookie returns "ZM_AUTH_TOKEN=<token>" or "ZM_ADMIN_AUTH_TOKEN=<token>"
func (a AuthToken) Cookie() string {
	name := AccountAuthTokenCookie
	if a.Admin {
		name = AdminAuthTokenCookie
	}
	return name + "=" + strings.TrimSpace(a.Token)
}

// CookieString is an AuthContext carrying an already composed cookie value
type CookieString string

// Cookie returns the value unchanged
func (c CookieString) Cookie() string {
	return string(c)
}

// FileRef references a local file by path
type FileRef struct {
	Path string
}

// NewFileRef creates a file reference for path
func NewFileRef(path string) FileRef {
	return FileRef{Path: path}
}

// Name returns the base filename
func (f FileRef) Name() string {
	return filepath.Base(f.Path)
}

// IsRegular reports whether the path currently resolves to a regular file
func (f FileRef) IsRegular() bool {
	if f.Path == "" {
		return false
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Request bundles the files of one upload, its correlation id and
// optional per-request auth.
//
// A Request is not meant to be shared between goroutines while it is
// being uploaded, but RequestID is safe for concurrent use.
type Request struct {
	files []FileRef
	auth  AuthContext

	idOnce    sync.Once
	requestID string
}

// RequestOption configures a Request
type RequestOption func(*Request)

// WithRequestID sets an explicit request id
func WithRequestID(id string) RequestOption {
	return func(r *Request) {
		r.requestID = id
	}
}

// WithAuth sets the auth context used for this request only
func WithAuth(auth AuthContext) RequestOption {
	return func(r *Request) {
		r.auth = auth
	}
}

// WithAuthToken is shorthand for WithAuth(AuthToken{...})
func WithAuthToken(token string, admin bool) RequestOption {
	return WithAuth(AuthToken{Token: token, Admin: admin})
}

// NewRequest creates an upload request for the given files
func NewRequest(files []FileRef, opts ...RequestOption) *Request {
	r := &Request{
		files: append([]FileRef(nil), files...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRequestFromPaths creates an upload request from plain paths
func NewRequestFromPaths(paths []string, opts ...RequestOption) *Request {
	files := make([]FileRef, 0, len(paths))
	for _, p := range paths {
		files = append(files, NewFileRef(p))
	}
	return NewRequest(files, opts...)
}

// Files returns, on every call, the files that still resolve to regular
// files. Missing or non-regular entries are dropped silently.
func (r *Request) Files() []FileRef {
	var files []FileRef
	for _, f := range r.files {
		if f.IsRegular() {
			files = append(files, f)
		}
	}
	return files
}

// RequestID returns the request id, generating one on first use when none
// was supplied. The generated value is stable for the life of the Request.
func (r *Request) RequestID() string {
	r.idOnce.Do(func() {
		if r.requestID == "" {
			r.requestID = generateRequestID()
		}
	})
	return r.requestID
}

// Auth returns the per-request auth context, or nil
func (r *Request) Auth() AuthContext {
	return r.auth
}

func generateRequestID() string {
	return uuid.New().String()
}
