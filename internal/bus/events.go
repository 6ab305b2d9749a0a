package bus

import "time"

// InboundMessage is a user message arriving from a channel.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// SessionKey identifies the conversation this message belongs to. Messages
// from the same chat on the same channel share agent history.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a reply on its way back to a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo string
}
