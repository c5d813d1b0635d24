package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/identity"
)

// State is the session's position in its open/send lifecycle.
type State int

const (
	// StateIdle is the initial state: no conversation selected.
	StateIdle State = iota
	// StateOpening means a history fetch is in flight.
	StateOpening
	// StateOpen means a conversation is displayed and sends are accepted.
	StateOpen
	// StateSending is a substate of Open: an optimistic message is
	// rendered and its send is in flight.
	StateSending
	// StateFailed is terminal per attempt; a new Open recovers.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateSending:
		return "sending"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Session orchestrates one open conversation: fetching history, sending
// messages, and reconciling optimistic state with server responses. Only the
// session mutates the message list, and only at state transitions.
type Session struct {
	Logger   *slog.Logger
	Resolver IdentityResolver
	Client   Client
	Store    *Store
	Sink     Sink
	// Cache is optional write-through history storage.
	Cache Cache

	mu      sync.Mutex
	state   State
	partner int64
	self    identity.Identity
	msgs    []api.Message
	// gen identifies the conversation context a request was issued
	// against. A response whose generation no longer matches is stale and
	// must be discarded: there is no cancellation primitive, so discard
	// substitutes for it.
	gen uint64
}

// Open selects partnerID as the active conversation and fetches its history.
// Any previously open conversation is discarded.
func (s *Session) Open(ctx context.Context, partnerID int64) error {
	id, err := s.Resolver.Resolve(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.msgs = nil
		s.mu.Unlock()
		var cerr error
		if errors.Is(err, identity.ErrUnauthenticated) {
			cerr = &api.Error{Kind: api.KindAuthRequired, Op: "open conversation", Err: err}
		} else {
			cerr = &api.Error{Kind: api.KindLoad, Op: "open conversation", Err: err}
		}
		s.sink().ShowError(cerr)
		return cerr
	}

	s.mu.Lock()
	s.state = StateOpening
	s.partner = partnerID
	s.self = id
	s.msgs = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	if s.Store != nil {
		s.Store.SetActive(partnerID)
	}

	msgs, err := s.Client.ListMessages(ctx, id.UserID, partnerID)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logger().Info("Discarding stale history response", "partner_id", partnerID)
		return &api.Error{Kind: api.KindStateConflict, Op: "open conversation", Err: errors.New("partner changed while loading")}
	}
	if err != nil {
		s.state = StateFailed
		s.msgs = nil
		s.mu.Unlock()
		if api.IsAuthRequired(err) {
			s.Resolver.Invalidate(ctx)
		}
		s.sink().ShowError(err)
		return err
	}
	s.state = StateOpen
	s.msgs = msgs
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger().Info("Conversation opened", "partner_id", partnerID, "messages", len(msgs))
	s.sink().RenderMessages(snapshot)
	s.sink().ScrollToNewest()

	if s.Cache != nil {
		if err := s.Cache.PutMessages(ctx, id.UserID, partnerID, msgs); err != nil {
			s.logger().Error("Could not cache history", "error", err.Error())
		}
	}
	return nil
}

// Send delivers text to the active partner with an optimistic append. Empty
// or whitespace-only text, or a session with no open conversation, is a
// silent no-op rather than an error.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if (s.state != StateOpen && s.state != StateSending) || s.partner == 0 {
		s.mu.Unlock()
		s.logger().Info("Dropping send with no open conversation")
		return nil
	}
	msg := api.Message{
		LocalID:    uuid.NewString(),
		SenderID:   s.self.UserID,
		ReceiverID: s.partner,
		Text:       text,
		CreatedAt:  time.Now(),
		Status:     api.StatusPending,
	}
	s.state = StateSending
	s.msgs = append(s.msgs, msg)
	partner := s.partner
	self := s.self
	gen := s.gen
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.sink().RenderMessages(snapshot)
	s.sink().ScrollToNewest()

	echo, err := s.Client.SendMessage(ctx, partner, text)

	s.mu.Lock()
	if s.gen != gen {
		// The user switched conversations while the send was in
		// flight. The optimistic entry went with the old message list;
		// the result must not touch the new view.
		s.mu.Unlock()
		s.logger().Info("Discarding stale send response", "partner_id", partner)
		return &api.Error{Kind: api.KindStateConflict, Op: "send message", Err: errors.New("partner changed while sending")}
	}
	if err != nil {
		s.markLocked(msg.LocalID, api.StatusFailed)
		s.state = StateOpen
		snapshot = s.snapshotLocked()
		s.mu.Unlock()

		if api.IsAuthRequired(err) {
			s.Resolver.Invalidate(ctx)
		}
		s.sink().RenderMessages(snapshot)
		s.sink().ShowError(err)
		return err
	}

	// The server echoes identical text; only the authoritative timestamp
	// is adopted.
	s.markLocked(msg.LocalID, api.StatusDelivered)
	if !echo.CreatedAt.IsZero() {
		s.stampLocked(msg.LocalID, echo.CreatedAt)
	}
	s.state = StateOpen
	sentAt := msg.CreatedAt
	if !echo.CreatedAt.IsZero() {
		sentAt = echo.CreatedAt
	}
	snapshot = s.snapshotLocked()
	s.mu.Unlock()

	if s.Store != nil {
		s.Store.TouchSummary(partner, text, sentAt)
	}
	s.sink().RenderMessages(snapshot)
	s.sink().ScrollToNewest()

	if s.Cache != nil {
		stored := msg
		stored.Status = api.StatusDelivered
		stored.CreatedAt = sentAt
		if err := s.Cache.InsertMessage(ctx, self.UserID, partner, stored); err != nil {
			s.logger().Error("Could not cache sent message", "error", err.Error())
		}
	}
	return nil
}

// Retry re-opens the conversation after a failure. A no-op when no partner
// was ever selected.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	partner := s.partner
	s.mu.Unlock()
	if partner == 0 {
		return nil
	}
	return s.Open(ctx, partner)
}

// Messages returns a copy of the displayed conversation in chronological
// order.
func (s *Session) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Partner returns the active partner id, zero when none.
func (s *Session) Partner() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

func (s *Session) snapshotLocked() []api.Message {
	out := make([]api.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Session) markLocked(localID string, status api.DeliveryStatus) {
	for i := range s.msgs {
		if s.msgs[i].LocalID == localID {
			s.msgs[i].Status = status
			return
		}
	}
}

func (s *Session) stampLocked(localID string, at time.Time) {
	for i := range s.msgs {
		if s.msgs[i].LocalID == localID {
			s.msgs[i].CreatedAt = at
			return
		}
	}
}

func (s *Session) sink() Sink {
	if s.Sink == nil {
		return NopSink{}
	}
	return s.Sink
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
