package message

// Attachment describes a file accepted by the server. The attachment id
// is what later mail API calls use to reference the upload.
type Attachment struct {
	AttachmentID string `json:"attachmentId"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

// NewAttachment creates an Attachment, clamping a negative size to zero
func NewAttachment(attachmentID, fileName, contentType string, size int64) Attachment {
	if size < 0 {
		size = 0
	}
	return Attachment{
		AttachmentID: attachmentID,
		FileName:     fileName,
		ContentType:  contentType,
		Size:         size,
	}
}
