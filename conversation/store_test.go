package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/identity"
)

func TestStore_LoadSummaries(t *testing.T) {
	tests := []struct {
		name         string
		resolver     *testresolver
		client       *testclient
		want         []api.ChatSummary
		wantKind     api.Kind
		wantInvalidated int
	}{
		{
			name:     "Unauthenticated",
			resolver: &testresolver{err: identity.ErrUnauthenticated},
			client: &testclient{
				listChats: func(t *testing.T) ([]api.ChatSummary, error) {
					t.Error("Network call issued without an identity")
					return nil, nil
				},
			},
			wantKind: api.KindAuthRequired,
		},
		{
			name:     "OK",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listChats: func(t *testing.T) ([]api.ChatSummary, error) {
					return []api.ChatSummary{
						{PartnerID: 7, PartnerName: "ayse", AvatarURL: "https://cdn.example.com/a.jpg", Preview: "hey"},
					}, nil
				},
			},
			want: []api.ChatSummary{
				{PartnerID: 7, PartnerName: "ayse", AvatarURL: "https://cdn.example.com/a.jpg", Preview: "hey"},
			},
		},
		{
			name:     "MissingAvatarGetsFallback",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listChats: func(t *testing.T) ([]api.ChatSummary, error) {
					return []api.ChatSummary{{PartnerID: 107, PartnerName: "bora"}}, nil
				},
			},
			want: []api.ChatSummary{
				{PartnerID: 107, PartnerName: "bora", AvatarURL: "https://randomuser.me/api/portraits/men/7.jpg"},
			},
		},
		{
			name:     "AuthFailureInvalidatesCredential",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listChats: func(t *testing.T) ([]api.ChatSummary, error) {
					return nil, api.Errf(api.KindAuthRequired, "GET /api/users/me/chats", "status 401")
				},
			},
			wantKind:        api.KindAuthRequired,
			wantInvalidated: 1,
		},
		{
			name:     "LoadError",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listChats: func(t *testing.T) ([]api.ChatSummary, error) {
					return nil, api.Errf(api.KindLoad, "GET /api/users/me/chats", "status 500")
				},
			},
			wantKind: api.KindLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.client.T = t
			s := &Store{Logger: slogt.New(t), Resolver: tt.resolver, Client: tt.client}

			got, err := s.LoadSummaries(context.Background())
			if tt.wantKind != api.KindUnknown {
				if api.KindOf(err) != tt.wantKind {
					t.Fatalf("Got error %v (kind %s), want kind %s", err, api.KindOf(err), tt.wantKind)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if tt.want != nil {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("Summaries mismatch (-want +got):\n%s", diff)
				}
			}
			if tt.resolver.invalidated != tt.wantInvalidated {
				t.Errorf("Resolver invalidated %d times, want %d", tt.resolver.invalidated, tt.wantInvalidated)
			}
		})
	}
}

func TestStore_LoadReplacesWholesale(t *testing.T) {
	responses := [][]api.ChatSummary{
		{{PartnerID: 7, PartnerName: "ayse", AvatarURL: "https://cdn.example.com/a.jpg"}},
		{{PartnerID: 9, PartnerName: "cem", AvatarURL: "https://cdn.example.com/c.jpg"}},
	}
	call := 0
	client := &testclient{
		T: t,
		listChats: func(t *testing.T) ([]api.ChatSummary, error) {
			out := responses[call]
			call++
			return out, nil
		},
	}
	s := &Store{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client}

	if _, err := s.LoadSummaries(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSummaries(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.Summaries()
	if len(got) != 1 || got[0].PartnerID != 9 {
		t.Errorf("Got summaries %+v, want only partner 9 after refetch", got)
	}
}

func TestStore_UpsertSummaryIdempotent(t *testing.T) {
	s := &Store{Logger: slogt.New(t)}

	s.UpsertSummary(7, "ayse", "https://cdn.example.com/a.jpg")
	s.UpsertSummary(7, "ayse", "https://cdn.example.com/a.jpg")

	got := s.Summaries()
	if len(got) != 1 {
		t.Fatalf("Got %d summaries, want exactly 1", len(got))
	}
	if got[0].Preview != "" || !got[0].LastMessageAt.IsZero() {
		t.Errorf("Synthesized summary should have empty preview and timestamp, got %+v", got[0])
	}
}

func TestStore_UpsertSummaryPrepends(t *testing.T) {
	client := &testclient{
		T: t,
		listChats: func(t *testing.T) ([]api.ChatSummary, error) {
			return []api.ChatSummary{{PartnerID: 7, PartnerName: "ayse", AvatarURL: "https://cdn.example.com/a.jpg"}}, nil
		},
	}
	s := &Store{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client}
	if _, err := s.LoadSummaries(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.UpsertSummary(9, "cem", "")

	got := s.Summaries()
	if len(got) != 2 || got[0].PartnerID != 9 {
		t.Fatalf("Got %+v, want new partner 9 at the head", got)
	}
}

func TestStore_TouchSummary(t *testing.T) {
	s := &Store{Logger: slogt.New(t)}
	s.UpsertSummary(7, "ayse", "")
	s.UpsertSummary(9, "cem", "")

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.TouchSummary(7, "hi", at)

	got := s.Summaries()
	if len(got) != 2 {
		t.Fatalf("Got %d summaries, want 2", len(got))
	}
	if got[0].PartnerID != 7 || got[0].Preview != "hi" || !got[0].LastMessageAt.Equal(at) {
		t.Errorf("Got head %+v, want partner 7 with refreshed preview", got[0])
	}
}

func TestStore_SetActive(t *testing.T) {
	s := &Store{Logger: slogt.New(t)}
	s.SetActive(7)
	if s.Active() != 7 {
		t.Errorf("Active() = %d, want 7", s.Active())
	}
	s.SetActive(9)
	if s.Active() != 9 {
		t.Errorf("Active() = %d, want 9 after switching", s.Active())
	}
}

// testresolver is a scripted IdentityResolver.
type testresolver struct {
	id          identity.Identity
	err         error
	invalidated int
}

func (r *testresolver) Resolve(context.Context) (identity.Identity, error) {
	if r.err != nil {
		return identity.Identity{}, r.err
	}
	return r.id, nil
}

func (r *testresolver) Invalidate(context.Context) {
	r.invalidated++
}

// testclient is a scripted Client in the func-field style.
type testclient struct {
	T            *testing.T
	listChats    func(t *testing.T) ([]api.ChatSummary, error)
	listMessages func(t *testing.T, selfID, partnerID int64) ([]api.Message, error)
	sendMessage  func(t *testing.T, receiverID int64, text string) (api.Message, error)
}

func (c *testclient) ListChats(context.Context) ([]api.ChatSummary, error) {
	return c.listChats(c.T)
}

func (c *testclient) ListMessages(_ context.Context, selfID, partnerID int64) ([]api.Message, error) {
	return c.listMessages(c.T, selfID, partnerID)
}

func (c *testclient) SendMessage(_ context.Context, receiverID int64, text string) (api.Message, error) {
	return c.sendMessage(c.T, receiverID, text)
}
