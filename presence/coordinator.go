package presence

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"marketplace-chat/dto"
)

// Coordinator bundles the local typing emitter with the remote typing and online views.
type Coordinator struct {
	UserID string
	Typing *TypingEmitter
	Remote *TypingState
	Online *OnlineSet
	log    *logrus.Logger
}

func NewCoordinator(userID string, out Emitter, clock Clock, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Coordinator{
		UserID: userID,
		Typing: NewTypingEmitter(userID, out, clock, log),
		Remote: NewTypingState(clock, DefaultIdle),
		Online: NewOnlineSet(),
		log:    log,
	}
}

// CancelTyping is called by the message engine at submission time.
func (c *Coordinator) CancelTyping(chatID string) {
	c.Typing.Stop(chatID)
}

// Handle applies an inbound event. It reports whether the event changed presence state.
func (c *Coordinator) Handle(env dto.Envelope) bool {
	switch env.Event {
	case dto.EventTyping, dto.EventStopTyping:
		var payload dto.TypingPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.UserID == c.UserID {
			return false
		}
		if env.Event == dto.EventTyping {
			c.Remote.Start(payload.ChatID, payload.UserID)
		} else {
			c.Remote.Clear(payload.ChatID, payload.UserID)
		}
		return true

	case dto.EventMessageNew:
		// a lost stop-typing must not leave the indicator stuck
		var msg dto.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.SenderID == c.UserID {
			return false
		}
		if !c.Remote.IsTyping(msg.ChatID, msg.SenderID) {
			return false
		}
		c.Remote.Clear(msg.ChatID, msg.SenderID)
		return true

	case dto.EventUsersOnline:
		var online []string
		if err := json.Unmarshal(env.Data, &online); err != nil {
			c.log.WithError(err).Warn("Malformed users:online payload")
			return false
		}
		c.Online.Replace(online)
		return true
	}
	return false
}

func (c *Coordinator) Close() {
	c.Typing.Close()
	c.Remote.Close()
}
