package api

import "time"

// A ChatSummary is a lightweight preview record for one conversation partner.
type ChatSummary struct {
	PartnerID     int64
	PartnerName   string
	AvatarURL     string
	Preview       string
	LastMessageAt time.Time
}

// DeliveryStatus tracks an optimistically rendered message through its send.
// The server never reports a status; it exists purely for client-side
// reconciliation.
type DeliveryStatus int

const (
	// StatusDelivered is the resting state. Messages fetched from history
	// and messages whose send was acknowledged are Delivered.
	StatusDelivered DeliveryStatus = iota
	// StatusPending marks an optimistic append whose send is in flight.
	StatusPending
	// StatusFailed marks an optimistic append whose send was rejected.
	// Failed messages must render visually distinct from delivered ones.
	StatusFailed
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "delivered"
	}
}

// A Message is one direct message between two users. Direction ("sent" vs
// "received") is always derived from SenderID against the viewer's identity,
// never stored separately.
type Message struct {
	// LocalID is assigned by the client when a message is created locally
	// so the pending entry can be found again at reconciliation time.
	// Messages fetched from the server have an empty LocalID.
	LocalID    string
	SenderID   int64
	ReceiverID int64
	Text       string
	CreatedAt  time.Time
	Status     DeliveryStatus
}

// A User is a directory entry returned by the user search endpoint.
type User struct {
	UserID    int64
	Username  string
	AvatarURL string
}

// A ToggleResult is the backend's answer to a like/save/follow mutation.
type ToggleResult struct {
	Success bool
	Message string
	// LikesCount is the authoritative count after the mutation. Not every
	// toggle endpoint reports one.
	LikesCount *int
}
