// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTP(S) transport used by the upload client.

The upload client only depends on the [Doer] interface, so any
*http.Client works. [HTTPSClient] is the bundled implementation with
TLS 1.2/1.3 defaults and typed errors.

# TLS Configuration

	config := transport.DefaultHTTPSConfig()
	// MinTLSVersion: TLS 1.2
	// MaxTLSVersion: TLS 1.3

For TLS 1.2, the following cipher suites are offered:
  - TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
  - TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256

# Client Usage

	client := transport.NewHTTPSClient(&transport.HTTPSConfig{
	    MinTLSVersion: transport.TLS12,
	    RootCAs:       certPool,
	    Timeout:       5 * time.Minute,
	})

	resp, err := client.Do(req)

# Errors

  - [*Error]: the exchange could not be completed (DNS, TLS, connection reset, timeout)
  - [*StatusError]: the server answered with a non-2xx status

No request is retried. Deadlines come from the request context and the
configured client timeout.

# Request Context

A [RequestContext] carries the user agent and originating address of the
end user when uploads are proxied by a web application.
[FromHTTPRequest] derives one from an incoming request.
*/
package transport
