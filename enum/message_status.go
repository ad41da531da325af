package enum

// MessageStatus is the local lifecycle state of a message on the sending side.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusConfirmed MessageStatus = "confirmed"
)
