package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/zimbra-api/upload-api/pkg/message"
)

// DefaultSkipOffset skips past the leading status code of the envelope
const DefaultSkipOffset = 3

// DefaultPattern matches a JSON array of objects. Matching is greedy and
// stops at line ends, so the payload is expected on one line.
var DefaultPattern = regexp.MustCompile(`\[\{.*\}\]`)

// ObjectPattern matches a single JSON object. It is only tried when
// DefaultPattern finds nothing, so braces echoed in the request id never
// shadow an array payload.
var ObjectPattern = regexp.MustCompile(`\{.*\}`)

// ParseError reports a payload that matched the pattern but is not valid JSON
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode upload response payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Extractor locates and decodes the JSON payload of an upload response
type Extractor struct {
	// SkipOffset is the number of leading bytes never searched
	SkipOffset int
	// Pattern selects the payload. When nil, DefaultPattern is tried
	// first and ObjectPattern second.
	Pattern *regexp.Regexp
}

// DefaultExtractor returns an extractor with the default offset and patterns
func DefaultExtractor() *Extractor {
	return &Extractor{
		SkipOffset: DefaultSkipOffset,
	}
}

// Parse decodes body with the default extractor
func Parse(body string) ([]message.Attachment, error) {
	return DefaultExtractor().Parse(body)
}

// record is the wire shape of one attachment
type record struct {
	AttachmentID string `json:"aid"`
	FileName     string `json:"filename"`
	ContentType  string `json:"ct"`
	Size         int64  `json:"s"`
}

func (r record) attachment() message.Attachment {
	return message.NewAttachment(r.AttachmentID, r.FileName, r.ContentType, r.Size)
}

// Find returns the payload substring of body, or "" when there is none
func (e *Extractor) Find(body string) string {
	offset := e.SkipOffset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(body) {
		return ""
	}

	body = body[offset:]
	if e.Pattern != nil {
		return e.Pattern.FindString(body)
	}
	if payload := DefaultPattern.FindString(body); payload != "" {
		return payload
	}
	return ObjectPattern.FindString(body)
}

// Parse returns the attachments described by body, in payload order. An
// empty result with a nil error means the reply carried no attachments.
func (e *Extractor) Parse(body string) ([]message.Attachment, error) {
	payload := e.Find(body)
	if payload == "" {
		return []message.Attachment{}, nil
	}

	raw := bytes.TrimSpace([]byte(payload))
	if len(raw) > 0 && raw[0] == '[' {
		var records []record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, &ParseError{Payload: payload, Err: err}
		}
		attachments := make([]message.Attachment, 0, len(records))
		for _, r := range records {
			attachments = append(attachments, r.attachment())
		}
		return attachments, nil
	}

	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &ParseError{Payload: payload, Err: err}
	}
	return []message.Attachment{r.attachment()}, nil
}
