// Package storage keeps the attachment handles returned by upload calls so
// they can be referenced by later mail API requests.
//
// # Interface Design
//
// [AttachmentStore] records every attachment together with the request id
// of the upload that produced it. Lookups are by attachment id or by
// request id.
//
// # Implementations
//
// The memory sub-package keeps records in process and is used by tests and
// the fake upload endpoint. The mongodb sub-package persists records in a
// MongoDB collection.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"time"

	"github.com/zimbra-api/upload-api/pkg/message"
)

// AttachmentStore persists attachment handles
type AttachmentStore interface {
	// Save records attachments under requestID. Existing records with the
	// same attachment id are replaced. Attachments without an id cannot be
	// referenced later and are skipped.
	Save(ctx context.Context, requestID string, attachments []message.Attachment) error

	// Get returns the record for attachmentID, or nil if there is none
	Get(ctx context.Context, attachmentID string) (*Record, error)

	// ListByRequest returns the records of one upload in upload order
	ListByRequest(ctx context.Context, requestID string) ([]*Record, error)

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}

// Record is a stored attachment handle
type Record struct {
	AttachmentID string    `bson:"_id" json:"attachmentId"`
	RequestID    string    `bson:"request_id" json:"requestId"`
	Position     int       `bson:"position" json:"position"`
	FileName     string    `bson:"file_name" json:"fileName"`
	ContentType  string    `bson:"content_type" json:"contentType"`
	Size         int64     `bson:"size" json:"size"`
	UploadedAt   time.Time `bson:"uploaded_at" json:"uploadedAt"`
}

// NewRecords converts the attachments of one upload into records. Position
// is the index in the server reply, so it keeps gaps left by attachments
// without an id.
func NewRecords(requestID string, attachments []message.Attachment, now time.Time) []*Record {
	records := make([]*Record, 0, len(attachments))
	for i, a := range attachments {
		if a.AttachmentID == "" {
			continue
		}
		records = append(records, &Record{
			AttachmentID: a.AttachmentID,
			RequestID:    requestID,
			Position:     i,
			FileName:     a.FileName,
			ContentType:  a.ContentType,
			Size:         a.Size,
			UploadedAt:   now,
		})
	}
	return records
}

// Attachment returns the handle described by r
func (r *Record) Attachment() message.Attachment {
	return message.NewAttachment(r.AttachmentID, r.FileName, r.ContentType, r.Size)
}
