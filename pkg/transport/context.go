package transport

import (
	"net"
	"net/http"
	"strings"
)

// RequestContext describes the party on whose behalf an upload is made,
// typically the browser talking to a web application that proxies uploads.
// Empty values mean "unknown" and are not forwarded.
type RequestContext interface {
	UserAgent() string
	OriginatingIP() string
}

// StaticContext is a RequestContext with fixed values
type StaticContext struct {
	Agent string
	IP    string
}

// UserAgent returns the configured user agent
func (c StaticContext) UserAgent() string {
	return c.Agent
}

// OriginatingIP returns the configured client address
func (c StaticContext) OriginatingIP() string {
	return c.IP
}

// forwardingHeaders are consulted in order for the client address
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Originating-IP",
	"Client-IP",
}

// FromHTTPRequest derives a RequestContext from an incoming request. The
// originating IP is the first comma separated entry of the first
// forwarding header present, falling back to the remote address.
func FromHTTPRequest(r *http.Request) StaticContext {
	return StaticContext{
		Agent: r.UserAgent(),
		IP:    clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	for _, name := range forwardingHeaders {
		if ip := firstSegment(r.Header.Get(name)); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func firstSegment(value string) string {
	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}
