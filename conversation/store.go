package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/identity"
)

// Store holds the set of known chat partners and tracks which one is
// selected. The summary list is replaced wholesale on every load; the backend
// response is authoritative and nothing is merged incrementally.
type Store struct {
	Logger   *slog.Logger
	Resolver IdentityResolver
	Client   Client
	// Cache is optional. When set, loads write through to it and
	// CachedSummaries can serve an offline preview.
	Cache Cache

	mu        sync.Mutex
	selfID    int64
	summaries []api.ChatSummary
	active    int64
}

// LoadSummaries fetches the chat summary list for the authenticated user and
// replaces the stored set. When the identity is unresolved it fails before
// any network I/O.
func (s *Store) LoadSummaries(ctx context.Context) ([]api.ChatSummary, error) {
	id, err := s.Resolver.Resolve(ctx)
	if errors.Is(err, identity.ErrUnauthenticated) {
		return nil, &api.Error{Kind: api.KindAuthRequired, Op: "load summaries", Err: err}
	}
	if err != nil {
		return nil, &api.Error{Kind: api.KindLoad, Op: "load summaries", Err: err}
	}

	summaries, err := s.Client.ListChats(ctx)
	if err != nil {
		if api.IsAuthRequired(err) {
			s.Resolver.Invalidate(ctx)
		}
		return nil, err
	}

	for i := range summaries {
		summaries[i].AvatarURL = avatarOr(summaries[i].AvatarURL, summaries[i].PartnerID)
	}

	s.mu.Lock()
	s.selfID = id.UserID
	s.summaries = summaries
	s.mu.Unlock()

	s.logger().Info("Chat summaries loaded", "count", len(summaries))

	if s.Cache != nil {
		if err := s.Cache.PutSummaries(ctx, id.UserID, summaries); err != nil {
			s.logger().Error("Could not cache chat summaries", "error", err.Error())
		}
	}
	return s.Summaries(), nil
}

// CachedSummaries returns the locally cached summary list, for display while
// a live load is outstanding or unavailable. Returns nothing without a cache
// or a resolved identity.
func (s *Store) CachedSummaries(ctx context.Context) []api.ChatSummary {
	if s.Cache == nil {
		return nil
	}
	id, err := s.Resolver.Resolve(ctx)
	if err != nil {
		return nil
	}
	summaries, err := s.Cache.ListSummaries(ctx, id.UserID)
	if err != nil {
		s.logger().Error("Could not read cached summaries", "error", err.Error())
		return nil
	}
	return summaries
}

// UpsertSummary prepends a synthesized summary for a partner with no prior
// messages, used when the user starts a brand-new conversation. Calling it
// again for a known partner changes nothing.
func (s *Store) UpsertSummary(partnerID int64, displayName, avatarURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sum := range s.summaries {
		if sum.PartnerID == partnerID {
			return
		}
	}
	s.summaries = append([]api.ChatSummary{{
		PartnerID:   partnerID,
		PartnerName: displayName,
		AvatarURL:   avatarOr(avatarURL, partnerID),
	}}, s.summaries...)
}

// TouchSummary refreshes a partner's preview and timestamp after a delivered
// send and moves the conversation to the head of the list.
func (s *Store) TouchSummary(partnerID int64, preview string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sum := range s.summaries {
		if sum.PartnerID != partnerID {
			continue
		}
		sum.Preview = preview
		sum.LastMessageAt = at
		s.summaries = append(s.summaries[:i], s.summaries[i+1:]...)
		s.summaries = append([]api.ChatSummary{sum}, s.summaries...)
		return
	}
}

// SetActive marks one summary as the selected conversation. At most one is
// active at a time; passing an unknown partner still records it so the
// highlight survives an UpsertSummary that races the click.
func (s *Store) SetActive(partnerID int64) {
	s.mu.Lock()
	s.active = partnerID
	s.mu.Unlock()
}

// Active returns the selected partner id, zero when none is selected.
func (s *Store) Active() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Summaries returns a copy of the current summary list.
func (s *Store) Summaries() []api.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.ChatSummary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
