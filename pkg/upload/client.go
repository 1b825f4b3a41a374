package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zimbra-api/upload-api/pkg/message"
	"github.com/zimbra-api/upload-api/pkg/mime"
	"github.com/zimbra-api/upload-api/pkg/response"
	"github.com/zimbra-api/upload-api/pkg/transport"
)

// Names used on the wire
const (
	RequestIDField = "requestId"
	ResponseFormat = "fmt=raw,extended"
)

var (
	// ErrValidation is returned when a request has no uploadable files
	ErrValidation = errors.New("Upload request must have at least one file.")

	// ErrClientBusy is returned when Upload is called while another upload
	// on the same client is still in flight
	ErrClientBusy = errors.New("upload already in progress")
)

// State is the client's position in the upload cycle
type State int32

const (
	StateIdle             State = iota // No request in flight
	StateAwaitingResponse              // Request sent, response not yet consumed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting-response"
	default:
		return "unknown"
	}
}

// Observer is notified around every upload that passes validation
type Observer interface {
	UploadStarted(requestID string, files int)
	UploadFinished(requestID string, attachments int, elapsed time.Duration, err error)
}

// Client uploads files to a single upload servlet
type Client struct {
	url        string
	doer       transport.Doer
	auth       message.AuthContext
	requestCtx transport.RequestContext
	userAgent  string
	extractor  *response.Extractor
	observer   Observer
	logger     *slog.Logger

	state atomic.Int32

	mu               sync.Mutex
	lastRequest      *http.Request
	lastResponse     *http.Response
	lastResponseBody string
}

// Option configures a Client
type Option func(*Client)

// WithTransport sets the HTTP transport. The default is an HTTPSClient
// with DefaultHTTPSConfig.
func WithTransport(doer transport.Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithAuth sets the auth used when a request carries none of its own
func WithAuth(auth message.AuthContext) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

// WithRequestContext forwards the end user's agent and address
func WithRequestContext(rc transport.RequestContext) Option {
	return func(c *Client) {
		c.requestCtx = rc
	}
}

// WithUserAgent sets the User-Agent sent when the request context has none
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithExtractor replaces the response extractor
func WithExtractor(e *response.Extractor) Option {
	return func(c *Client) {
		if e != nil {
			c.extractor = e
		}
	}
}

// WithObserver registers an upload observer
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger for debug events. A nil logger discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the upload servlet at uploadURL
func NewClient(uploadURL string, opts ...Option) *Client {
	c := &Client{
		url:       strings.TrimSpace(uploadURL),
		extractor: response.DefaultExtractor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = transport.NewHTTPSClient(nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// URL returns the upload URL including the response format query
func (c *Client) URL() string {
	switch {
	case strings.HasSuffix(c.url, "?"), strings.HasSuffix(c.url, "&"):
		return c.url + ResponseFormat
	case strings.Contains(c.url, "?"):
		return c.url + "&" + ResponseFormat
	default:
		return c.url + "?" + ResponseFormat
	}
}

// State returns the current state of the client
func (c *Client) State() State {
	return State(c.state.Load())
}

// Upload sends the request's files in one POST and returns the attachments
// the server reports, in server order. Transport errors are returned as
// received from the transport.
func (c *Client) Upload(ctx context.Context, req *message.Request) ([]message.Attachment, error) {
	if req == nil {
		return nil, ErrValidation
	}
	files := req.Files()
	if len(files) == 0 {
		return nil, ErrValidation
	}

	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingResponse)) {
		return nil, ErrClientBusy
	}
	defer c.state.Store(int32(StateIdle))

	requestID := req.RequestID()
	start := time.Now()
	if c.observer != nil {
		c.observer.UploadStarted(requestID, len(files))
	}

	attachments, err := c.upload(ctx, req, files)

	if c.observer != nil {
		c.observer.UploadFinished(requestID, len(attachments), time.Since(start), err)
	}
	return attachments, err
}

func (c *Client) upload(ctx context.Context, req *message.Request, files []message.FileRef) ([]message.Attachment, error) {
	enc := mime.NewEncoder()
	enc.AddField(RequestIDField, req.RequestID(), mime.WithHeader("Content-Type", "text/plain"))
	for _, f := range files {
		c.logger.Debug("uploading file", "path", f.Path)
		enc.AddFile(f.Name(), f.Path)
	}

	body := enc.Build()
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), body)
	if err != nil {
		return nil, &transport.Error{Method: http.MethodPost, URL: c.URL(), Err: err}
	}
	if n, ok := enc.ContentLength(); ok {
		httpReq.ContentLength = n
	}
	c.setHeaders(httpReq, req, enc.ContentType())

	c.mu.Lock()
	c.lastRequest = httpReq
	c.lastResponse = nil
	c.lastResponseBody = ""
	c.mu.Unlock()

	resp, err := c.doer.Do(httpReq)
	if resp != nil {
		raw, readErr := c.retainResponse(resp)
		if err == nil && readErr != nil {
			return nil, &transport.Error{Method: http.MethodPost, URL: httpReq.URL.Redacted(), Err: readErr}
		}
		if err == nil {
			c.logger.Debug("response body", "body", raw)
			return c.extractor.Parse(raw)
		}
	}
	return nil, err
}

func (c *Client) setHeaders(httpReq *http.Request, req *message.Request, contentType string) {
	auth := req.Auth()
	if auth == nil {
		auth = c.auth
	}
	if auth != nil {
		if cookie := auth.Cookie(); cookie != "" {
			httpReq.Header.Set("Cookie", cookie)
		}
	}
	httpReq.Header.Set("Content-Type", contentType)

	userAgent := c.userAgent
	if c.requestCtx != nil {
		if ua := c.requestCtx.UserAgent(); ua != "" {
			userAgent = ua
		}
		if ip := c.requestCtx.OriginatingIP(); ip != "" {
			httpReq.Header.Set("X-Forwarded-For", ip)
			httpReq.Header.Set("X-Originating-IP", ip)
		}
	}
	if userAgent != "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}
}

// retainResponse drains the body and keeps a readable copy for diagnostics
func (c *Client) retainResponse(resp *http.Response) (string, error) {
	var raw []byte
	var err error
	if resp.Body != nil {
		raw, err = io.ReadAll(resp.Body)
		resp.Body.Close()
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	c.mu.Lock()
	c.lastResponse = resp
	c.lastResponseBody = string(raw)
	c.mu.Unlock()

	return string(raw), err
}

// LastRequest returns the request built by the most recent upload, or nil.
// Its body has already been consumed.
func (c *Client) LastRequest() *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

// LastResponse returns the response of the most recent upload, or nil when
// none was received. Its body is a buffered copy.
func (c *Client) LastResponse() *http.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResponse
}

// LastResponseBody returns the raw body of the most recent response
func (c *Client) LastResponseBody() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResponseBody
}
