// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mime encodes and decodes multipart/form-data bodies for the upload
servlet.

# Wire Format

Each part is framed as

	--<boundary>\r\n
	<Name>: <Value>\r\n      (one line per header, in insertion order)
	\r\n
	<content>\r\n

and the body ends with

	--<boundary>--\r\n

The boundary is 20 random bytes, hex encoded, generated once per
[Encoder].

# Creating Bodies

	enc := mime.NewEncoder()
	enc.AddField("requestId", id, mime.WithHeader("Content-Type", "text/plain"))
	enc.AddFile("report.pdf", "/tmp/report.pdf")

	body := enc.Build()
	defer body.Close()
	req, _ := http.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", enc.ContentType())

Unless the caller supplies them, every part gets a Content-Disposition
header, a Content-Length header when the size is known, and for named
files a Content-Type looked up from the file extension.

# Streaming

Files are opened only when the body reaches them, copied in chunks
(1 MiB by default) and closed as soon as they are exhausted, so a
multi-gigabyte upload needs no proportional memory. Closing the [Body]
releases a file left open by an aborted transfer.

# Parsing

[Parse] decodes a form-data body back into parts and is used by the test
upload endpoint.

# References

  - Returning Values from Forms: multipart/form-data: https://datatracker.ietf.org/doc/html/rfc7578
  - MIME Multipart: https://datatracker.ietf.org/doc/html/rfc2046
*/
package mime
