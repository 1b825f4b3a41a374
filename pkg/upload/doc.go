// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package upload sends local files to a mail server upload servlet and
returns the attachment handles it assigns.

# Overview

An upload is a single POST of a multipart/form-data body to the servlet
URL with the query string fmt=raw,extended. The body carries a
requestId field followed by one part per file. The servlet answers with
a short envelope wrapping a JSON array of attachment records:

	200,'3f0c...',[{"aid":"9a2e...","ct":"image/png","filename":"logo.png","s":4213}]

The returned attachment ids are used by later mail API calls (for
example to attach the uploaded files to a draft).

# Usage

	client := upload.NewClient("https://mail.example.com/service/upload",
	    upload.WithAuth(message.AuthToken{Token: token}),
	    upload.WithLogger(logger),
	)

	req := message.NewRequestFromPaths([]string{"/tmp/report.pdf", "/tmp/logo.png"})
	attachments, err := client.Upload(ctx, req)
	if err != nil {
	    return err
	}
	for _, a := range attachments {
	    fmt.Println(a.AttachmentID, a.FileName)
	}

# Errors

  - [ErrValidation]: the request has no uploadable files; nothing is sent
  - [ErrClientBusy]: another Upload is in progress on the same client
  - transport errors ([*transport.Error], [*transport.StatusError]) are returned unchanged
  - [*response.ParseError]: the response payload was not valid JSON

Uploads are never retried.

# Concurrency

A Client handles one upload at a time. Distinct clients share no state
and may upload concurrently. Cancellation and deadlines come from the
context passed to Upload and from the transport.
*/
package upload
