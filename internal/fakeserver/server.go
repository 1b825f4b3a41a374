// Package fakeserver provides an in-process stand-in for the mail server
// upload servlet.
//
// # Endpoint
//
// POST /service/upload?fmt=raw,extended accepts a multipart/form-data body
// carrying a requestId field and any number of file parts. Every file part
// is assigned a fresh attachment id and the reply uses the servlet's raw
// envelope:
//
//	200,'<requestId>',[{"aid":"...","ct":"...","filename":"...","s":123}]
//
// A request without a valid auth cookie is answered with 401. Accepted
// attachments are recorded in a storage.AttachmentStore so tests can
// inspect them.
//
// # Health
//
//   - GET /health - Liveness probe
package fakeserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zimbra-api/upload-api/internal/storage"
	"github.com/zimbra-api/upload-api/internal/storage/memory"
	"github.com/zimbra-api/upload-api/pkg/message"
	"github.com/zimbra-api/upload-api/pkg/mime"
)

// UploadPath is the servlet path served by the handler
const UploadPath = "/service/upload"

// DefaultMaxUploadSize limits the request body
const DefaultMaxUploadSize = 100 << 20

// Upload is one request received by the server
type Upload struct {
	RequestID   string
	Header      http.Header
	Query       string
	Parts       []mime.FormPart
	Attachments []message.Attachment
}

// Server is the fake upload servlet
type Server struct {
	authToken     string
	maxUploadSize int64
	store         storage.AttachmentStore
	logger        *slog.Logger
	mux           *http.ServeMux
	newID         func() string

	mu      sync.Mutex
	uploads []Upload
}

// Config holds fake server configuration
type Config struct {
	// AuthToken, when set, must be presented in ZM_AUTH_TOKEN or
	// ZM_ADMIN_AUTH_TOKEN
	AuthToken     string
	MaxUploadSize int64
	Store         storage.AttachmentStore
	Logger        *slog.Logger
}

// New creates a fake upload server
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	s := &Server{
		authToken:     cfg.AuthToken,
		maxUploadSize: cfg.MaxUploadSize,
		store:         cfg.Store,
		logger:        cfg.Logger,
		newID:         uuid.NewString,
	}
	if s.maxUploadSize <= 0 {
		s.maxUploadSize = DefaultMaxUploadSize
	}
	if s.store == nil {
		s.store = memory.NewStore()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.mux = http.NewServeMux()
	s.registerRoutes(s.mux)
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST "+UploadPath, s.handleUpload)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Store returns the store receiving accepted attachments
func (s *Server) Store() storage.AttachmentStore {
	return s.store
}

// Uploads returns the requests received so far
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.rawResponse(w, http.StatusUnauthorized, "null", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	parts, err := mime.Parse(r.Body, r.Header.Get("Content-Type"))
	if err != nil {
		s.logger.Warn("rejecting upload", "error", err)
		s.rawResponse(w, http.StatusBadRequest, "null", nil)
		return
	}

	upload := Upload{
		Header:      r.Header.Clone(),
		Query:       r.URL.RawQuery,
		Parts:       parts,
		Attachments: []message.Attachment{},
	}
	for _, p := range parts {
		if !p.IsFile() {
			if p.Name == "requestId" {
				upload.RequestID = string(p.Data)
			}
			continue
		}

		contentType := p.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		upload.Attachments = append(upload.Attachments,
			message.NewAttachment(s.newID(), p.FileName, contentType, int64(len(p.Data))))
	}

	if err := s.store.Save(r.Context(), upload.RequestID, upload.Attachments); err != nil {
		s.logger.Error("failed to store attachments", "error", err)
		s.rawResponse(w, http.StatusInternalServerError, upload.RequestID, nil)
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, upload)
	s.mu.Unlock()

	s.logger.Info("upload accepted",
		"request_id", upload.RequestID,
		"attachments", len(upload.Attachments),
	)
	s.rawResponse(w, http.StatusOK, upload.RequestID, upload.Attachments)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	for _, name := range []string{message.AccountAuthTokenCookie, message.AdminAuthTokenCookie} {
		if c, err := r.Cookie(name); err == nil && c.Value == s.authToken {
			return true
		}
	}
	return false
}

type record struct {
	AttachmentID string `json:"aid"`
	ContentType  string `json:"ct"`
	FileName     string `json:"filename"`
	Size         int64  `json:"s"`
}

// rawResponse writes the servlet's raw envelope. The status code is part of
// the body; the HTTP status mirrors it.
func (s *Server) rawResponse(w http.ResponseWriter, status int, requestID string, attachments []message.Attachment) {
	records := make([]record, 0, len(attachments))
	for _, a := range attachments {
		records = append(records, record{
			AttachmentID: a.AttachmentID,
			ContentType:  a.ContentType,
			FileName:     a.FileName,
			Size:         a.Size,
		})
	}
	payload, _ := json.Marshal(records)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "%d,'%s',%s", status, quoteEscaper.Replace(requestID), payload)
}

var quoteEscaper = strings.NewReplacer(`'`, `\'`)
