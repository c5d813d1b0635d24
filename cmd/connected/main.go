// Command connected is a terminal client for the Connected social network:
// chat list, conversations with optimistic sends, and like/save/follow
// toggles against a running backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/connectedapp/connected-client/api"
	"github.com/connectedapp/connected-client/conversation"
	"github.com/connectedapp/connected-client/credfile"
	"github.com/connectedapp/connected-client/histdb"
	"github.com/connectedapp/connected-client/identity"
	"github.com/connectedapp/connected-client/redis"
	"github.com/connectedapp/connected-client/toggle"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(context.Background(), logger); err != nil {
		logger.Error("Fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var store identity.CredentialStore
	if cfg.RedisAddr != "" {
		r, err := redis.Connect(ctx, cfg.RedisAddr, "")
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		store = r
	} else {
		store = &credfile.Store{Path: cfg.CredentialFile}
	}

	resolver := identity.NewResolver(logger, store,
		identity.Static{Value: cfg.UserID, Token: cfg.Token},
		identity.Stored{Store: store},
	)

	client := &api.Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Logger:  logger,
	}
	if id, err := resolver.Resolve(ctx); err == nil {
		client.Token = id.Token
	}

	var cache conversation.Cache
	if cfg.HistoryDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o700); err != nil {
			logger.Warn("History cache disabled", "error", err.Error())
		} else if db, err := histdb.Open(ctx, cfg.HistoryDB); err != nil {
			logger.Warn("History cache disabled", "error", err.Error())
		} else {
			defer db.Close()
			cache = db
		}
	}

	sink := &termSink{out: os.Stdout}
	if id, err := resolver.Resolve(ctx); err == nil {
		sink.selfID = id.UserID
	}

	chats := &conversation.Store{
		Logger:   logger,
		Resolver: resolver,
		Client:   client,
		Cache:    cache,
	}
	session := &conversation.Session{
		Logger:   logger,
		Resolver: resolver,
		Client:   client,
		Store:    chats,
		Sink:     sink,
		Cache:    cache,
	}
	toggles := &toggle.Controller{Logger: logger, Resolver: resolver}

	app := &app{
		logger:   logger,
		client:   client,
		resolver: resolver,
		chats:    chats,
		session:  session,
		toggles:  toggles,
		sink:     sink,
		marks:    make(map[string]*toggle.Resource),
	}

	go app.poll(ctx, cfg.PollInterval)

	fmt.Fprintln(os.Stdout, "connected — /chats, /open <user>, /find <name>, /like <post>, /save <post>, /follow <user>, /retry, /quit")
	return app.repl(ctx, os.Stdin)
}

type app struct {
	logger   *slog.Logger
	client   *api.Client
	resolver *identity.Resolver
	chats    *conversation.Store
	session  *conversation.Session
	toggles  *toggle.Controller
	sink     *termSink
	marks    map[string]*toggle.Resource
}

func (a *app) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/chats":
			a.showChats(ctx)
		case line == "/retry":
			if err := a.session.Retry(ctx); err != nil {
				a.logger.Warn("Retry failed", "error", err.Error())
			}
		case strings.HasPrefix(line, "/open "):
			a.openChat(ctx, strings.TrimPrefix(line, "/open "))
		case strings.HasPrefix(line, "/find "):
			a.findUsers(ctx, strings.TrimPrefix(line, "/find "))
		case strings.HasPrefix(line, "/like "):
			a.togglePost(ctx, strings.TrimPrefix(line, "/like "), "like")
		case strings.HasPrefix(line, "/save "):
			a.togglePost(ctx, strings.TrimPrefix(line, "/save "), "save")
		case strings.HasPrefix(line, "/follow "):
			a.toggleFollow(ctx, strings.TrimPrefix(line, "/follow "))
		default:
			if err := a.session.Send(ctx, line); err != nil {
				a.logger.Warn("Send failed", "error", err.Error())
			}
		}
	}
	return sc.Err()
}

func (a *app) showChats(ctx context.Context) {
	summaries, err := a.chats.LoadSummaries(ctx)
	if err != nil {
		if cached := a.chats.CachedSummaries(ctx); len(cached) > 0 {
			fmt.Println("(offline — showing cached chats)")
			printSummaries(cached)
			return
		}
		a.sink.ShowError(err)
		return
	}
	printSummaries(summaries)
}

func printSummaries(summaries []api.ChatSummary) {
	if len(summaries) == 0 {
		fmt.Println("No chats available.")
		return
	}
	for _, s := range summaries {
		preview := s.Preview
		if preview == "" {
			preview = "No messages yet"
		}
		fmt.Printf("  [%d] %s — %s\n", s.PartnerID, s.PartnerName, preview)
	}
}

func (a *app) openChat(ctx context.Context, arg string) {
	partnerID, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("usage: /open <user-id>")
		return
	}
	if err := a.session.Open(ctx, partnerID); err != nil {
		a.logger.Warn("Open failed", "error", err.Error())
	}
}

func (a *app) findUsers(ctx context.Context, term string) {
	var selfID int64
	if id, err := a.resolver.Resolve(ctx); err == nil {
		selfID = id.UserID
	}
	users, err := a.client.SearchUsers(ctx, strings.TrimSpace(term), selfID)
	if err != nil {
		a.sink.ShowError(err)
		return
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return
	}
	for _, u := range users {
		fmt.Printf("  [%d] %s\n", u.UserID, u.Username)
		a.chats.UpsertSummary(u.UserID, u.Username, u.AvatarURL)
	}
}

func (a *app) togglePost(ctx context.Context, arg, kind string) {
	postID, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Printf("usage: /%s <post-id>\n", kind)
		return
	}
	id, err := a.resolver.Resolve(ctx)
	if err != nil {
		fmt.Println("You must be logged in.")
		return
	}

	res := a.mark(fmt.Sprintf("post:%d:%s", postID, kind), kind == "like")
	state, err := a.toggles.Toggle(ctx, res, func(ctx context.Context, enable bool) (api.ToggleResult, error) {
		switch {
		case kind == "like" && enable:
			return a.client.LikePost(ctx, postID, id.UserID)
		case kind == "like":
			return a.client.UnlikePost(ctx, postID, id.UserID)
		case enable:
			return a.client.SavePost(ctx, postID, id.UserID)
		default:
			return a.client.UnsavePost(ctx, postID, id.UserID)
		}
	})
	if err != nil {
		fmt.Println("Operation failed.")
		return
	}
	if res.Counted {
		fmt.Printf("%s: %v (%d)\n", kind, state, res.Count)
	} else {
		fmt.Printf("%s: %v\n", kind, state)
	}
}

func (a *app) toggleFollow(ctx context.Context, arg string) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("usage: /follow <user-id>")
		return
	}
	id, err := a.resolver.Resolve(ctx)
	if err != nil {
		fmt.Println("You must be logged in.")
		return
	}

	res := a.mark(fmt.Sprintf("user:%d:follow", targetID), false)
	state, err := a.toggles.Toggle(ctx, res, func(ctx context.Context, enable bool) (api.ToggleResult, error) {
		if enable {
			return a.client.Follow(ctx, id.UserID, targetID)
		}
		return a.client.Unfollow(ctx, id.UserID, targetID)
	})
	if err != nil {
		fmt.Println("Operation failed.")
		return
	}
	if state {
		fmt.Println("Following.")
	} else {
		fmt.Println("Unfollowed.")
	}
}

// mark returns the tracked toggle state for a resource, creating it off.
func (a *app) mark(id string, counted bool) *toggle.Resource {
	if res, ok := a.marks[id]; ok {
		return res
	}
	res := &toggle.Resource{ID: id, Counted: counted}
	a.marks[id] = res
	return res
}

// poll refreshes the open conversation on an interval. Stale responses are
// discarded by the session's generation check, so a refresh racing a manual
// open is harmless.
func (a *app) poll(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if a.session.Partner() == 0 || a.session.State() != conversation.StateOpen {
				continue
			}
			if err := a.session.Open(ctx, a.session.Partner()); err != nil {
				a.logger.Warn("Poll refresh failed", "error", err.Error())
			}
		}
	}
}

// termSink renders the conversation to the terminal. Newest output is last,
// so scrolling to the newest message is the terminal's natural behavior.
type termSink struct {
	out    io.Writer
	selfID int64
}

func (t *termSink) RenderMessages(msgs []api.Message) {
	fmt.Fprintln(t.out, "----")
	if len(msgs) == 0 {
		fmt.Fprintln(t.out, "Start a conversation!")
		return
	}
	for _, m := range msgs {
		who := "them"
		if m.SenderID == t.selfID {
			who = "you"
		}
		marker := ""
		switch m.Status {
		case api.StatusPending:
			marker = " …"
		case api.StatusFailed:
			marker = " [not delivered]"
		}
		fmt.Fprintf(t.out, "%s: %s%s\n", who, m.Text, marker)
	}
}

func (t *termSink) ScrollToNewest() {}

func (t *termSink) ShowError(err error) {
	if api.IsAuthRequired(err) {
		fmt.Fprintln(t.out, "Please log in to view messages.")
		return
	}
	fmt.Fprintln(t.out, "Error loading messages. Type /retry to try again.")
}
