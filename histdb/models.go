package histdb

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/connectedapp/connected-client/api"
)

// A summary is one cached chat-partner row, keyed per viewing user so
// several accounts can share a database file.
type summary struct {
	bun.BaseModel `bun:"table:chat_summaries"`

	SelfID        int64     `bun:"self_id,pk"`
	PartnerID     int64     `bun:"partner_id,pk"`
	PartnerName   string    `bun:"partner_name,notnull"`
	AvatarURL     string    `bun:"avatar_url"`
	Preview       string    `bun:"preview"`
	LastMessageAt time.Time `bun:"last_message_at,nullzero"`
}

// A message is one cached message row for the (self, partner) conversation.
type message struct {
	bun.BaseModel `bun:"table:messages"`

	LocalID    string    `bun:"local_id,pk"`
	SelfID     int64     `bun:"self_id,notnull"`
	PartnerID  int64     `bun:"partner_id,notnull"`
	SenderID   int64     `bun:"sender_id,notnull"`
	ReceiverID int64     `bun:"receiver_id,notnull"`
	Text       string    `bun:"message_text,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero"`
}

func (s summary) APISummary() api.ChatSummary {
	return api.ChatSummary{
		PartnerID:     s.PartnerID,
		PartnerName:   s.PartnerName,
		AvatarURL:     s.AvatarURL,
		Preview:       s.Preview,
		LastMessageAt: s.LastMessageAt,
	}
}

func (m message) APIMessage() api.Message {
	return api.Message{
		LocalID:    m.LocalID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		Status:     api.StatusDelivered,
	}
}
