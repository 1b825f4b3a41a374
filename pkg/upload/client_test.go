package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimbra-api/upload-api/internal/fakeserver"
	"github.com/zimbra-api/upload-api/pkg/message"
	"github.com/zimbra-api/upload-api/pkg/mime"
	"github.com/zimbra-api/upload-api/pkg/response"
	"github.com/zimbra-api/upload-api/pkg/transport"
)

// mockDoer records requests and replies with a canned response
type mockDoer struct {
	calls    int
	requests []*http.Request
	bodies   []string
	status   int
	reply    string
	err      error
	onDo     func(*http.Request)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		m.bodies = append(m.bodies, string(data))
	}
	if m.onDo != nil {
		m.onDo(req)
	}
	if m.err != nil {
		return nil, m.err
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(m.reply)),
	}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient("  https://mail.example.com/service/upload \n")

	assert.Equal(t, "https://mail.example.com/service/upload?fmt=raw,extended", client.URL())
	assert.IsType(t, &transport.HTTPSClient{}, client.doer)
	assert.NotNil(t, client.logger)
	assert.NotNil(t, client.extractor)
	assert.Equal(t, StateIdle, client.State())
	assert.Nil(t, client.LastRequest())
	assert.Nil(t, client.LastResponse())
}

func TestClient_URL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"plain", "https://h/service/upload", "https://h/service/upload?fmt=raw,extended"},
		{"existing query", "https://h/service/upload?lbfums=", "https://h/service/upload?lbfums=&fmt=raw,extended"},
		{"trailing question mark", "https://h/service/upload?", "https://h/service/upload?fmt=raw,extended"},
		{"trailing ampersand", "https://h/upload?a=1&", "https://h/upload?a=1&fmt=raw,extended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NewClient(tt.url).URL())
		})
	}
}

func TestClient_Upload_NoFiles(t *testing.T) {
	doer := &mockDoer{}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	tests := []struct {
		name string
		req  *message.Request
	}{
		{"nil request", nil},
		{"empty request", message.NewRequest(nil)},
		{"missing files", message.NewRequestFromPaths([]string{"/does/not/exist.txt"})},
		{"directory", message.NewRequestFromPaths([]string{t.TempDir()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attachments, err := client.Upload(context.Background(), tt.req)

			assert.Nil(t, attachments)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, "Upload request must have at least one file.", err.Error())
		})
	}

	assert.Equal(t, 0, doer.calls)
	assert.Nil(t, client.LastRequest())
}

func TestClient_Upload_RequestShape(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.pdf", "%PDF-1.4")
	notes := writeFile(t, dir, "notes", "plain notes")

	doer := &mockDoer{reply: `200,'req-1',[{"aid":"A1","filename":"report.pdf","ct":"application/pdf","s":8}]`}
	client := NewClient("https://mail.example.com/service/upload",
		WithTransport(doer),
		WithAuth(message.AuthToken{Token: "tok"}),
	)

	req := message.NewRequestFromPaths([]string{report, notes}, message.WithRequestID("req-1"))
	attachments, err := client.Upload(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, message.NewAttachment("A1", "report.pdf", "application/pdf", 8), attachments[0])

	require.Equal(t, 1, doer.calls)
	sent := doer.requests[0]
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, "fmt=raw,extended", sent.URL.RawQuery)
	assert.Equal(t, "ZM_AUTH_TOKEN=tok", sent.Header.Get("Cookie"))
	assert.Empty(t, sent.Header.Get("X-Forwarded-For"))

	contentType := sent.Header.Get("Content-Type")
	require.True(t, strings.HasPrefix(contentType, `multipart/form-data; boundary="`))
	assert.Equal(t, int64(len(doer.bodies[0])), sent.ContentLength)

	parts, err := mime.Parse(strings.NewReader(doer.bodies[0]), contentType)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.Equal(t, "requestId", parts[0].Name)
	assert.Equal(t, "req-1", string(parts[0].Data))
	assert.Equal(t, "text/plain", parts[0].ContentType())
	assert.False(t, parts[0].IsFile())

	assert.Equal(t, "report.pdf", parts[1].Name)
	assert.Equal(t, "report.pdf", parts[1].FileName)
	assert.Equal(t, "application/pdf", parts[1].ContentType())
	assert.Equal(t, "%PDF-1.4", string(parts[1].Data))

	assert.Equal(t, "notes", parts[2].Name)
	assert.Empty(t, parts[2].ContentType())
	assert.Equal(t, "plain notes", string(parts[2].Data))
}

func TestClient_Upload_RequestAuthOverridesClient(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	doer := &mockDoer{reply: `200,'x',[]`}
	client := NewClient("https://h/service/upload",
		WithTransport(doer),
		WithAuth(message.AuthToken{Token: "client"}),
	)

	req := message.NewRequestFromPaths([]string{path}, message.WithAuthToken(" admin-token ", true))
	_, err := client.Upload(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "ZM_ADMIN_AUTH_TOKEN=admin-token", doer.requests[0].Header.Get("Cookie"))
}

func TestClient_Upload_NoAuth(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	doer := &mockDoer{reply: `200,'x',[]`}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.NoError(t, err)

	_, present := doer.requests[0].Header["Cookie"]
	assert.False(t, present)
}

func TestClient_Upload_RequestContextHeaders(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	tests := []struct {
		name       string
		opts       []Option
		expectedUA string
		expectedIP string
	}{
		{
			name:       "browser context",
			opts:       []Option{WithRequestContext(transport.StaticContext{Agent: "Mozilla/5.0", IP: "203.0.113.7"})},
			expectedUA: "Mozilla/5.0",
			expectedIP: "203.0.113.7",
		},
		{
			name:       "configured agent as fallback",
			opts:       []Option{WithUserAgent("zmupload/1.0"), WithRequestContext(transport.StaticContext{})},
			expectedUA: "zmupload/1.0",
		},
		{
			name:       "context agent wins",
			opts:       []Option{WithUserAgent("zmupload/1.0"), WithRequestContext(transport.StaticContext{Agent: "Mozilla/5.0"})},
			expectedUA: "Mozilla/5.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{reply: `200,'x',[]`}
			client := NewClient("https://h/service/upload", append(tt.opts, WithTransport(doer))...)

			_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
			require.NoError(t, err)

			sent := doer.requests[0]
			assert.Equal(t, tt.expectedUA, sent.Header.Get("User-Agent"))
			assert.Equal(t, tt.expectedIP, sent.Header.Get("X-Forwarded-For"))
			assert.Equal(t, tt.expectedIP, sent.Header.Get("X-Originating-IP"))
		})
	}
}

func TestClient_Upload_TransportErrorUnchanged(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	transportErr := &transport.Error{Method: "POST", URL: "https://h", Err: errors.New("connection reset")}
	doer := &mockDoer{err: transportErr}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	attachments, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))

	assert.Nil(t, attachments)
	assert.Same(t, transportErr, err)
	assert.NotNil(t, client.LastRequest())
	assert.Nil(t, client.LastResponse())
	assert.Equal(t, StateIdle, client.State())
}

func TestClient_Upload_ParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	doer := &mockDoer{reply: `200,'x',[{"aid":"A1",}]`}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))

	var parseErr *response.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, `[{"aid":"A1",}]`, parseErr.Payload)

	require.NotNil(t, client.LastResponse())
	assert.Equal(t, `200,'x',[{"aid":"A1",}]`, client.LastResponseBody())
}

func TestClient_Upload_EmptyResult(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	doer := &mockDoer{reply: `200,'x',[]`}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	attachments, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.NoError(t, err)
	assert.NotNil(t, attachments)
	assert.Empty(t, attachments)
}

func TestClient_Upload_CustomExtractor(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	doer := &mockDoer{reply: `[{"aid":"A9"}]`}
	client := NewClient("https://h/service/upload",
		WithTransport(doer),
		WithExtractor(&response.Extractor{SkipOffset: 0}),
	)

	attachments, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "A9", attachments[0].AttachmentID)
}

func TestClient_Upload_RetainsRequestAndResponse(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	reply := `200,'r',[{"aid":"A1","filename":"a.txt","ct":"text/plain","s":1}]`
	doer := &mockDoer{reply: reply}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.NoError(t, err)

	assert.Same(t, doer.requests[0], client.LastRequest())
	require.NotNil(t, client.LastResponse())
	assert.Equal(t, http.StatusOK, client.LastResponse().StatusCode)

	body, err := io.ReadAll(client.LastResponse().Body)
	require.NoError(t, err)
	assert.Equal(t, reply, string(body))
	assert.Equal(t, reply, client.LastResponseBody())
}

func TestClient_Upload_StatusErrorKeepsResponse(t *testing.T) {
	ts := httptest.NewServer(fakeserver.New(&fakeserver.Config{AuthToken: "secret"}))
	defer ts.Close()

	path := writeFile(t, t.TempDir(), "a.txt", "a")
	client := NewClient(ts.URL+fakeserver.UploadPath,
		WithTransport(transport.NewHTTPSClient(nil)),
		WithAuth(message.AuthToken{Token: "wrong"}),
	)

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))

	var statusErr *transport.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.NotNil(t, client.LastResponse())
	assert.Equal(t, "401,'null',[]", client.LastResponseBody())
}

func TestClient_Upload_EarlyReplyWhileStreaming(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "401,'null',[]")
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "large.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("z"), 16<<20), 0o600))

	client := NewClient(ts.URL+"/service/upload", WithTransport(transport.NewHTTPSClient(nil)))
	for i := 0; i < 4; i++ {
		_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))

		var statusErr *transport.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	}
}

func TestClient_Upload_RoundTrip(t *testing.T) {
	srv := fakeserver.New(&fakeserver.Config{AuthToken: "secret"})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := t.TempDir()
	first := writeFile(t, dir, "invoice.pdf", "%PDF-1.7 invoice")
	second := writeFile(t, dir, "photo.jpg", strings.Repeat("j", 4096))

	client := NewClient(ts.URL+fakeserver.UploadPath, WithAuth(message.AuthToken{Token: "secret"}))
	req := message.NewRequestFromPaths([]string{first, second})

	attachments, err := client.Upload(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, attachments, 2)

	assert.Equal(t, "invoice.pdf", attachments[0].FileName)
	assert.Equal(t, "application/pdf", attachments[0].ContentType)
	assert.Equal(t, int64(16), attachments[0].Size)
	assert.Equal(t, "photo.jpg", attachments[1].FileName)
	assert.Equal(t, "image/jpeg", attachments[1].ContentType)
	assert.Equal(t, int64(4096), attachments[1].Size)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, req.RequestID(), uploads[0].RequestID)
	assert.Equal(t, "fmt=raw,extended", uploads[0].Query)

	records, err := srv.Store().ListByRequest(context.Background(), req.RequestID())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, attachments[0].AttachmentID, records[0].AttachmentID)
}

func TestClient_Upload_RemovedFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	kept := writeFile(t, dir, "kept.txt", "kept")
	gone := writeFile(t, dir, "gone.txt", "soon gone")

	doer := &mockDoer{reply: `200,'r',[]`}
	client := NewClient("https://h/service/upload", WithTransport(doer))

	req := message.NewRequestFromPaths([]string{kept, gone})
	require.NoError(t, os.Remove(gone))

	_, err := client.Upload(context.Background(), req)
	require.NoError(t, err)

	parts, err := mime.Parse(strings.NewReader(doer.bodies[0]), doer.requests[0].Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "kept.txt", parts[1].FileName)
}

// logRecorder collects slog records
type logRecorder struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *logRecorder) Enabled(context.Context, slog.Level) bool { return true }
func (h *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logRecorder) WithGroup(string) slog.Handler { return h }

func (h *logRecorder) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *logRecorder) attrs(i int) map[string]string {
	out := map[string]string{}
	h.records[i].Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.String()
		return true
	})
	return out
}

func TestClient_Upload_Logging(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	recorder := &logRecorder{}
	reply := `200,'r',[]`
	client := NewClient("https://h/service/upload",
		WithTransport(&mockDoer{reply: reply}),
		WithLogger(slog.New(recorder)),
	)

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.NoError(t, err)

	require.Len(t, recorder.records, 2)
	assert.Equal(t, "uploading file", recorder.records[0].Message)
	assert.Equal(t, slog.LevelDebug, recorder.records[0].Level)
	assert.Equal(t, path, recorder.attrs(0)["path"])
	assert.Equal(t, "response body", recorder.records[1].Message)
	assert.Equal(t, reply, recorder.attrs(1)["body"])
}

func TestClient_Upload_NilLoggerSameResult(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")
	reply := `200,'r',[{"aid":"A1","filename":"a.txt","ct":"text/plain","s":1}]`

	var buf bytes.Buffer
	withLogger := NewClient("https://h", WithTransport(&mockDoer{reply: reply}),
		WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	withoutLogger := NewClient("https://h", WithTransport(&mockDoer{reply: reply}), WithLogger(nil))

	req := message.NewRequestFromPaths([]string{path})
	a, errA := withLogger.Upload(context.Background(), req)
	b, errB := withoutLogger.Upload(context.Background(), req)

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Contains(t, buf.String(), "uploading file")
}

func TestClient_Upload_Busy(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	release := make(chan struct{})
	entered := make(chan struct{})
	doer := &mockDoer{reply: `200,'r',[]`}
	doer.onDo = func(*http.Request) {
		close(entered)
		<-release
	}
	client := NewClient("https://h", WithTransport(doer))

	done := make(chan error, 1)
	go func() {
		_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
		done <- err
	}()

	<-entered
	assert.Equal(t, StateAwaitingResponse, client.State())

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	assert.ErrorIs(t, err, ErrClientBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, client.State())
}

// recordingObserver records observer callbacks
type recordingObserver struct {
	started  []string
	finished []string
	files    int
	results  int
	err      error
	elapsed  time.Duration
}

func (o *recordingObserver) UploadStarted(requestID string, files int) {
	o.started = append(o.started, requestID)
	o.files = files
}

func (o *recordingObserver) UploadFinished(requestID string, attachments int, elapsed time.Duration, err error) {
	o.finished = append(o.finished, requestID)
	o.results = attachments
	o.elapsed = elapsed
	o.err = err
}

func TestClient_Upload_Observer(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeFile(t, dir, "a.txt", "a"), writeFile(t, dir, "b.txt", "b")}

	observer := &recordingObserver{}
	client := NewClient("https://h",
		WithTransport(&mockDoer{reply: `200,'r',[{"aid":"A1"},{"aid":"A2"}]`}),
		WithObserver(observer),
	)

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths(paths, message.WithRequestID("r")))
	require.NoError(t, err)

	assert.Equal(t, []string{"r"}, observer.started)
	assert.Equal(t, []string{"r"}, observer.finished)
	assert.Equal(t, 2, observer.files)
	assert.Equal(t, 2, observer.results)
	assert.NoError(t, observer.err)
	assert.GreaterOrEqual(t, observer.elapsed, time.Duration(0))

	_, err = client.Upload(context.Background(), message.NewRequest(nil))
	require.ErrorIs(t, err, ErrValidation)
	assert.Len(t, observer.started, 1, "validation failures are not observed")
}

func TestClient_Upload_ObserverSeesError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "a")
	failure := errors.New("boom")

	observer := &recordingObserver{}
	client := NewClient("https://h", WithTransport(&mockDoer{err: failure}), WithObserver(observer))

	_, err := client.Upload(context.Background(), message.NewRequestFromPaths([]string{path}))
	require.Error(t, err)
	assert.Same(t, failure, observer.err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting-response", StateAwaitingResponse.String())
	assert.Equal(t, "unknown", State(9).String())
}
