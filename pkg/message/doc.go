// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message defines the value types exchanged with the upload servlet.

# Requests

A [Request] bundles the local files to send and a correlation id:

	req := message.NewRequestFromPaths(
	    []string{"/tmp/invoice.pdf", "/tmp/logo.png"},
	    message.WithAuthToken(token, false),
	)

[Request.Files] re-checks the file system on every call, so a file removed
after the request was built is dropped instead of failing the upload.
[Request.RequestID] is generated lazily when not supplied and never
changes afterwards.

# Attachments

An [Attachment] is the server's handle for an accepted file. Its
AttachmentID is used by later mail API calls (for example when composing
a message with an uploaded attachment).

# Authentication

The server authenticates uploads with a cookie. [AuthToken] composes it
from a raw token:

	ZM_AUTH_TOKEN=<token>        account requests
	ZM_ADMIN_AUTH_TOKEN=<token>  admin requests
*/
package message
