package transport

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// maxErrorBody caps how much of a non-2xx response body is kept
const maxErrorBody = 64 << 10

// RecommendedTLS12CipherSuites are the TLS 1.2 suites offered by default
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// Doer sends a single HTTP request. *http.Client and *HTTPSClient satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSConfig contains HTTPS client configuration
type HTTPSConfig struct {
	MinTLSVersion      uint16
	MaxTLSVersion      uint16
	CipherSuites       []uint16
	Certificates       []tls.Certificate
	RootCAs            *x509.CertPool
	InsecureSkipVerify bool
	Timeout            time.Duration
	IdleConnTimeout    time.Duration
}

// DefaultHTTPSConfig returns a default HTTPS configuration. The timeout is
// generous because a single request carries whole files.
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         10 * time.Minute,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPSClient sends upload requests over HTTP(S)
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:         config.MinTLSVersion,
		MaxVersion:         config.MaxTLSVersion,
		CipherSuites:       config.CipherSuites,
		Certificates:       config.Certificates,
		RootCAs:            config.RootCAs,
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Config returns the configuration the client was built with. A nil config
// passed to NewHTTPSClient is reported as the defaults that replaced it.
func (c *HTTPSClient) Config() *HTTPSConfig {
	return c.config
}

// Do sends req. Failures to complete the exchange are returned as *Error.
// A response with a non-2xx status is returned together with a
// *StatusError; its body has been read and replaced with a buffered copy.
func (c *HTTPSClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Method: req.Method, URL: req.URL.Redacted(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp, nil
}
