// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package response decodes the upload servlet's reply into attachments.

# Envelope

With fmt=raw,extended the servlet answers with a short non-JSON prefix
followed by the payload of interest:

	200,'req-1',[{"aid":"6c1f...","ct":"image/png","filename":"logo.png","s":5120}]

The prefix carries the HTTP-like status and an echo of the request id.
Its exact shape is not documented, so the [Extractor] does not parse it.
Instead it skips a few bytes and searches the rest for a bracketed JSON
array of objects. Only when no array is present anywhere does it fall
back to a single JSON object, so a request id containing braces cannot
shadow the array. Both the skip offset and the pattern are configurable.

# Field Mapping

	aid       -> AttachmentID
	filename  -> FileName
	ct        -> ContentType
	s         -> Size

Missing fields default to the zero value. A reply without a payload
yields no attachments and no error; a payload that is not valid JSON
yields a [*ParseError].
*/
package response
