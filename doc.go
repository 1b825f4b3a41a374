// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package uploadapi uploads files to the attachment upload servlet of a
Zimbra-compatible mail server and decodes the attachment handles it
returns.

# Overview

Mail API calls that carry attachments (saving a draft, sending a message)
refer to files by an attachment id. Those ids are obtained by first
posting the files as multipart/form-data to the upload servlet. This
module implements that step: a streaming multipart encoder, an
extension-based MIME type table, the response extractor, and a client
tying them together.

# Package Structure

	github.com/zimbra-api/upload-api/pkg/upload     - Upload client
	github.com/zimbra-api/upload-api/pkg/message    - Upload requests, auth tokens and attachment handles
	github.com/zimbra-api/upload-api/pkg/mime       - Streaming multipart/form-data encoder and decoder
	github.com/zimbra-api/upload-api/pkg/mimetype   - File extension to MIME type table
	github.com/zimbra-api/upload-api/pkg/response   - Upload response extractor
	github.com/zimbra-api/upload-api/pkg/transport  - HTTPS transport and originating client context

Command line tool:

	github.com/zimbra-api/upload-api/cmd/zmupload   - Upload files and print the handles as JSON

# Quick Start

	client := upload.NewClient("https://mail.example.com/service/upload",
	    upload.WithAuth(message.AuthToken{Token: authToken}),
	)

	req := message.NewRequestFromPaths([]string{"/tmp/report.pdf"})
	attachments, err := client.Upload(ctx, req)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(attachments[0].AttachmentID)

# Wire Format

The request is a single POST to <upload url>?fmt=raw,extended with a
Cookie header carrying ZM_AUTH_TOKEN (or ZM_ADMIN_AUTH_TOKEN). The body
starts with a text/plain requestId field, followed by one part per file
named after the file:

	--<boundary>
	Content-Type: text/plain
	Content-Disposition: form-data; name="requestId"
	Content-Length: 36

	3f0c7a52-8d7e-4b3a-9d0e-2f6c1b1f7a10
	--<boundary>
	Content-Disposition: form-data; name="logo.png"; filename="logo.png"
	Content-Length: 4213
	Content-Type: image/png

	<file bytes>
	--<boundary>--

The servlet answers with its status code, the echoed request id and a
JSON array:

	200,'3f0c7a52-8d7e-4b3a-9d0e-2f6c1b1f7a10',[{"aid":"...","ct":"image/png","filename":"logo.png","s":4213}]

# Security Considerations

Auth tokens grant full mailbox (or admin) access. Keep them out of
configuration files by using ${VAR} references and a .env file, and
never enable transport.insecureSkipVerify outside of tests.
*/
package uploadapi
