// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mimetype maps file extensions to MIME types.

The table is fixed and covers common documents, images, audio, video,
archives, fonts and markup, plus a few vendor types seen on mail servers
(Apple Wallet passes and Outlook messages).

# Lookup

	ct, ok := mimetype.Lookup("/tmp/report.PDF")
	// ct == "application/pdf", ok == true

Unknown or missing extensions are not an error. Callers omit the
Content-Type header when ok is false.
*/
package mimetype
