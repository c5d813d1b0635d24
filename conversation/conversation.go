// Package conversation holds the messages-page state: the chat partner list
// and the one open conversation, kept consistent with asynchronous and
// possibly failing network responses.
package conversation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/identity"
)

// An IdentityResolver reports the authenticated user for this page session
// and can discard a credential the backend has rejected.
type IdentityResolver interface {
	Resolve(ctx context.Context) (identity.Identity, error)
	Invalidate(ctx context.Context)
}

// A Client provides the messaging endpoints of the Connected API.
type Client interface {
	ListChats(ctx context.Context) ([]api.ChatSummary, error)
	ListMessages(ctx context.Context, selfID, partnerID int64) ([]api.Message, error)
	SendMessage(ctx context.Context, receiverID int64, text string) (api.Message, error)
}

// A Cache provides a local storage layer for conversation history, served
// when the network has not answered yet. The server response is always
// authoritative; the cache is written through, never merged back into a live
// load.
type Cache interface {
	ListSummaries(ctx context.Context, selfID int64) ([]api.ChatSummary, error)
	PutSummaries(ctx context.Context, selfID int64, summaries []api.ChatSummary) error
	ListMessages(ctx context.Context, selfID, partnerID int64) ([]api.Message, error)
	PutMessages(ctx context.Context, selfID, partnerID int64, msgs []api.Message) error
	InsertMessage(ctx context.Context, selfID, partnerID int64, msg api.Message) error
}

// A Sink receives render events from the session. Implementations draw the
// message region; the session never touches presentation directly.
type Sink interface {
	// RenderMessages replaces the displayed conversation.
	RenderMessages(msgs []api.Message)
	// ScrollToNewest is emitted after a successful open or send.
	ScrollToNewest()
	// ShowError surfaces a user-visible failure in the message region.
	ShowError(err error)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) RenderMessages([]api.Message) {}
func (NopSink) ScrollToNewest()              {}
func (NopSink) ShowError(error)              {}

// FallbackAvatarURL derives a stable placeholder portrait for a partner whose
// profile carries no usable avatar.
func FallbackAvatarURL(partnerID int64) string {
	return fmt.Sprintf("https://randomuser.me/api/portraits/men/%d.jpg", partnerID%100)
}

func avatarOr(avatarURL string, partnerID int64) string {
	u, err := url.Parse(avatarURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return FallbackAvatarURL(partnerID)
	}
	return avatarURL
}
