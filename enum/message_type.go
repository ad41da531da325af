package enum

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeFile:
		return true
	}
	return false
}

// IsFile reports whether messages of this type carry an uploaded binary instead of inline text.
func (t MessageType) IsFile() bool {
	return t == MessageTypeImage || t == MessageTypeVideo || t == MessageTypeFile
}
