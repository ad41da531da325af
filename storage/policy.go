package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"marketplace-chat/apperror"
	"marketplace-chat/enum"
)

const (
	MB = 1 << 20

	// multipartOverhead covers form fields and part headers around the largest attachment.
	multipartOverhead = 1 * MB

	sniffLen = 3072
)

// Attachment is a binary submitted alongside a message, before upload.
type Attachment struct {
	Name   string
	Type   enum.MessageType
	Size   int64
	Reader io.Reader
}

// Inspected is an attachment that passed the policy. Body replays the sniffed header.
type Inspected struct {
	Name     string
	MimeType string
	Ext      string
	Size     int64
	Body     io.Reader
}

type Policy struct {
	MaxSize map[enum.MessageType]int64
	// Allowed lists accepted MIME types; an entry ending in "/" is a prefix.
	Allowed map[enum.MessageType][]string
}

func DefaultPolicy() Policy {
	return Policy{
		MaxSize: map[enum.MessageType]int64{
			enum.MessageTypeImage: 10 * MB,
			enum.MessageTypeVideo: 50 * MB,
			enum.MessageTypeFile:  10 * MB,
		},
		Allowed: map[enum.MessageType][]string{
			enum.MessageTypeImage: {"image/"},
			enum.MessageTypeVideo: {"video/"},
			enum.MessageTypeFile: {
				"application/pdf",
				"text/plain",
				"text/csv",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.ms-excel",
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				"application/vnd.ms-powerpoint",
				"application/vnd.openxmlformats-officedocument.presentationml.presentation",
				"application/zip",
			},
		},
	}
}

// CheckSize applies the size limit only. Clients call it before building a request.
// BodyLimit is the request body size an upload endpoint must accept so that every attachment the
// policy allows reaches the handler.
func (p Policy) BodyLimit() int {
	var largest int64
	for _, size := range p.MaxSize {
		if size > largest {
			largest = size
		}
	}
	return int(largest + multipartOverhead)
}

func (p Policy) CheckSize(kind enum.MessageType, size int64) error {
	limit, ok := p.MaxSize[kind]
	if !ok {
		return apperror.Upload(fmt.Sprintf("attachments are not accepted for type %q", kind), nil)
	}
	if size <= 0 {
		return apperror.Upload("attachment is empty", nil)
	}
	if size > limit {
		return apperror.Upload(fmt.Sprintf("attachment exceeds %d MB limit for %s", limit/MB, kind), nil)
	}
	return nil
}

// Inspect enforces size and sniffs the content type against the allow-list of the declared type.
func (p Policy) Inspect(a *Attachment) (*Inspected, error) {
	if a == nil || a.Reader == nil {
		return nil, apperror.Upload("attachment body is missing", nil)
	}
	if err := p.CheckSize(a.Type, a.Size); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(a.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperror.Upload("read attachment", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !p.allowed(a.Type, detected) {
		return nil, apperror.Upload(fmt.Sprintf("unsupported content type %s for %s", detected.String(), a.Type), nil)
	}

	ext := strings.ToLower(filepath.Ext(a.Name))
	if ext == "" {
		ext = detected.Extension()
	}

	return &Inspected{
		Name:     a.Name,
		MimeType: baseType(detected.String()),
		Ext:      ext,
		Size:     a.Size,
		Body:     io.MultiReader(bytes.NewReader(head), a.Reader),
	}, nil
}

func (p Policy) allowed(kind enum.MessageType, detected *mimetype.MIME) bool {
	name := baseType(detected.String())
	for _, allowed := range p.Allowed[kind] {
		if strings.HasSuffix(allowed, "/") {
			if strings.HasPrefix(name, allowed) {
				return true
			}
			continue
		}
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}
