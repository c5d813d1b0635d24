package conversation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/identity"
)

func TestSession_Open(t *testing.T) {
	history := []api.Message{
		{SenderID: 42, ReceiverID: 7, Text: "hi", Status: api.StatusDelivered},
		{SenderID: 7, ReceiverID: 42, Text: "hello", Status: api.StatusDelivered},
	}

	tests := []struct {
		name            string
		resolver        *testresolver
		client          *testclient
		wantState       State
		wantKind        api.Kind
		wantMessages    int
		wantInvalidated int
	}{
		{
			name:     "OK",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
					if selfID != 42 || partnerID != 7 {
						t.Errorf("Got pair (%d, %d), want (42, 7)", selfID, partnerID)
					}
					return history, nil
				},
			},
			wantState:    StateOpen,
			wantMessages: 2,
		},
		{
			name:     "Unauthenticated",
			resolver: &testresolver{err: identity.ErrUnauthenticated},
			client: &testclient{
				listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
					t.Error("History fetched without an identity")
					return nil, nil
				},
			},
			wantState: StateFailed,
			wantKind:  api.KindAuthRequired,
		},
		{
			name:     "AuthRejectedInvalidatesCredential",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
					return nil, api.Errf(api.KindAuthRequired, "GET", "status 401")
				},
			},
			wantState:       StateFailed,
			wantKind:        api.KindAuthRequired,
			wantInvalidated: 1,
		},
		{
			name:     "LoadError",
			resolver: &testresolver{id: identity.Identity{UserID: 42}},
			client: &testclient{
				listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
					return nil, api.Errf(api.KindLoad, "GET", "status 500")
				},
			},
			wantState: StateFailed,
			wantKind:  api.KindLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.client.T = t
			sink := &testsink{}
			s := &Session{Logger: slogt.New(t), Resolver: tt.resolver, Client: tt.client, Sink: sink}

			err := s.Open(context.Background(), 7)
			if tt.wantKind != api.KindUnknown {
				if api.KindOf(err) != tt.wantKind {
					t.Fatalf("Got error %v (kind %s), want kind %s", err, api.KindOf(err), tt.wantKind)
				}
				if len(sink.errs) == 0 {
					t.Error("Failure was not surfaced to the sink")
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if s.State() != tt.wantState {
				t.Errorf("State = %s, want %s", s.State(), tt.wantState)
			}
			if got := len(s.Messages()); got != tt.wantMessages {
				t.Errorf("Got %d messages, want %d", got, tt.wantMessages)
			}
			if tt.wantState == StateOpen && sink.scrolls == 0 {
				t.Error("View was not scrolled to the newest message")
			}
			if tt.resolver.invalidated != tt.wantInvalidated {
				t.Errorf("Resolver invalidated %d times, want %d", tt.resolver.invalidated, tt.wantInvalidated)
			}
		})
	}
}

func TestSession_SendEmptyTextIsNoop(t *testing.T) {
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			return nil, nil
		},
		sendMessage: func(t *testing.T, receiverID int64, text string) (api.Message, error) {
			t.Error("Send issued for empty text")
			return api.Message{}, nil
		},
	}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: &testsink{}}
	if err := s.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := s.Send(context.Background(), text); err != nil {
			t.Errorf("Send(%q) = %v, want silent no-op", text, err)
		}
	}
	if got := len(s.Messages()); got != 0 {
		t.Errorf("Message list grew to %d on empty sends", got)
	}
}

func TestSession_SendWithoutOpenIsNoop(t *testing.T) {
	client := &testclient{
		T: t,
		sendMessage: func(t *testing.T, receiverID int64, text string) (api.Message, error) {
			t.Error("Send issued with no open conversation")
			return api.Message{}, nil
		},
	}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: &testsink{}}

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Errorf("Send() = %v, want silent no-op", err)
	}
}

func TestSession_SendSuccess(t *testing.T) {
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			return []api.Message{{SenderID: 7, ReceiverID: 42, Text: "hello"}}, nil
		},
		sendMessage: func(t *testing.T, receiverID int64, text string) (api.Message, error) {
			if receiverID != 7 || text != "hi" {
				t.Errorf("Got send (%d, %q), want (7, %q)", receiverID, text, "hi")
			}
			return api.Message{SenderID: 42, ReceiverID: 7, Text: text, CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}, nil
		},
	}
	store := &Store{Logger: slogt.New(t)}
	store.UpsertSummary(7, "ayse", "")
	s := &Session{
		Logger:   slogt.New(t),
		Resolver: &testresolver{id: identity.Identity{UserID: 42}},
		Client:   client,
		Store:    store,
		Sink:     &testsink{},
	}
	if err := s.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Got %d messages, want 2", len(msgs))
	}
	sent := msgs[1]
	if sent.SenderID != 42 {
		t.Errorf("Sent message sender = %d, want the active identity 42", sent.SenderID)
	}
	if sent.Status != api.StatusDelivered {
		t.Errorf("Sent message status = %s, want delivered", sent.Status)
	}
	if sent.LocalID == "" {
		t.Error("Sent message lost its local id")
	}
	if s.State() != StateOpen {
		t.Errorf("State = %s, want open after the send settles", s.State())
	}

	head := store.Summaries()[0]
	if head.PartnerID != 7 || head.Preview != "hi" {
		t.Errorf("Summary head = %+v, want partner 7 previewing the sent text", head)
	}
}

func TestSession_SendFailureMarksMessage(t *testing.T) {
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			return nil, nil
		},
		sendMessage: func(t *testing.T, receiverID int64, text string) (api.Message, error) {
			return api.Message{}, api.Errf(api.KindLoad, "POST /api/messages", "status 500")
		},
	}
	sink := &testsink{}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: sink}
	if err := s.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	err := s.Send(context.Background(), "hi")
	if api.KindOf(err) != api.KindLoad {
		t.Fatalf("Got error %v, want kind load", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Got %d messages, want the optimistic entry retained", len(msgs))
	}
	if msgs[0].Status != api.StatusFailed {
		t.Errorf("Message status = %s, want failed so it renders distinctly", msgs[0].Status)
	}
	if len(sink.errs) == 0 {
		t.Error("Send failure was not surfaced to the sink")
	}
	if s.State() != StateOpen {
		t.Errorf("State = %s, want open (failure is per-message)", s.State())
	}
}

func TestSession_StaleSendIsDiscarded(t *testing.T) {
	histories := map[int64][]api.Message{
		7: {{SenderID: 7, ReceiverID: 42, Text: "old chat"}},
		9: {{SenderID: 9, ReceiverID: 42, Text: "new chat"}},
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			return histories[partnerID], nil
		},
		sendMessage: func(t *testing.T, receiverID int64, text string) (api.Message, error) {
			close(entered)
			<-release
			return api.Message{SenderID: 42, ReceiverID: receiverID, Text: text}, nil
		},
	}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: &testsink{}}
	if err := s.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), "hi")
	}()
	<-entered

	// Switch partners while the send is in flight.
	if err := s.Open(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; api.KindOf(err) != api.KindStateConflict {
		t.Fatalf("Stale send returned %v, want kind state_conflict", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Text != "new chat" {
		t.Errorf("Displayed conversation = %+v, want partner 9's history untouched", msgs)
	}
	if s.Partner() != 9 {
		t.Errorf("Partner = %d, want 9", s.Partner())
	}
}

func TestSession_StaleOpenIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			if first {
				first = false
				close(entered)
				<-release
				return []api.Message{{SenderID: 7, ReceiverID: 42, Text: "slow"}}, nil
			}
			return []api.Message{{SenderID: 9, ReceiverID: 42, Text: "fast"}}, nil
		},
	}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: &testsink{}}

	done := make(chan error, 1)
	go func() {
		done <- s.Open(context.Background(), 7)
	}()
	<-entered

	if err := s.Open(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; api.KindOf(err) != api.KindStateConflict {
		t.Fatalf("Stale open returned %v, want kind state_conflict", err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Text != "fast" {
		t.Errorf("Displayed conversation = %+v, want partner 9's history", msgs)
	}
}

func TestSession_Retry(t *testing.T) {
	fail := true
	client := &testclient{
		T: t,
		listMessages: func(t *testing.T, selfID, partnerID int64) ([]api.Message, error) {
			if fail {
				return nil, api.Errf(api.KindLoad, "GET", "status 500")
			}
			return []api.Message{{SenderID: 7, ReceiverID: 42, Text: "hello"}}, nil
		},
	}
	s := &Session{Logger: slogt.New(t), Resolver: &testresolver{id: identity.Identity{UserID: 42}}, Client: client, Sink: &testsink{}}

	if err := s.Open(context.Background(), 7); api.KindOf(err) != api.KindLoad {
		t.Fatalf("Got %v, want load failure", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("State = %s, want failed", s.State())
	}

	fail = false
	if err := s.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateOpen || len(s.Messages()) != 1 {
		t.Errorf("Retry did not recover: state %s, %d messages", s.State(), len(s.Messages()))
	}
}

// TestSession_EndToEnd walks the whole messages-page flow against a real
// HTTP server: resolve identity 42, load one summary for partner 7, open the
// conversation with 3 messages, send "hi" and observe the POST.
func TestSession_EndToEnd(t *testing.T) {
	var sentBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/api/users/me/chats":
			io.WriteString(w, `[
				{"partner_user_id": 7, "partner_username": "ayse", "partner_avatar_url": "https://cdn.example.com/a.jpg", "message_text": "see you"}
			]`)
		case r.Method == "GET" && r.URL.Path == "/api/messages/42/7":
			io.WriteString(w, `[
				{"sender_user_id": 42, "message_text": "hey"},
				{"sender_user_id": 7, "message_text": "hi there"},
				{"sender_user_id": 7, "message_text": "around?"}
			]`)
		case r.Method == "POST" && r.URL.Path == "/api/messages":
			if err := json.NewDecoder(r.Body).Decode(&sentBody); err != nil {
				t.Error(err)
			}
			w.WriteHeader(201)
			io.WriteString(w, `{"sender_user_id": 42, "message_text": "hi"}`)
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	logger := slogt.New(t)
	resolver := identity.NewResolver(logger, nil, identity.Static{Value: "42"})
	client := &api.Client{BaseURL: srv.URL, Logger: logger}
	store := &Store{Logger: logger, Resolver: resolver, Client: client}
	session := &Session{Logger: logger, Resolver: resolver, Client: client, Store: store, Sink: &testsink{}}

	summaries, err := store.LoadSummaries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].PartnerID != 7 {
		t.Fatalf("Got summaries %+v, want one for partner 7", summaries)
	}

	if err := session.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if got := len(session.Messages()); got != 3 {
		t.Fatalf("Got %d messages after open, want 3", got)
	}

	if err := session.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	msgs := session.Messages()
	if len(msgs) != 4 {
		t.Fatalf("Got %d messages after send, want 4", len(msgs))
	}
	if msgs[3].SenderID != 42 {
		t.Errorf("New message sender = %d, want 42", msgs[3].SenderID)
	}
	if sentBody["receiver_id"] != float64(7) || sentBody["message_text"] != "hi" {
		t.Errorf("POST body = %v, want {receiver_id: 7, message_text: \"hi\"}", sentBody)
	}
}

// testsink records render events.
type testsink struct {
	renders [][]api.Message
	scrolls int
	errs    []error
}

func (s *testsink) RenderMessages(msgs []api.Message) {
	s.renders = append(s.renders, msgs)
}

func (s *testsink) ScrollToNewest() { s.scrolls++ }

func (s *testsink) ShowError(err error) { s.errs = append(s.errs, err) }
