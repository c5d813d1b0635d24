// Package api is a typed client for the Connected REST backend. It owns the
// domain models, the error taxonomy, and the wire formats; the controllers in
// the other packages consume it through narrow interfaces of their own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/connectedapp/connected-client/api/validator"
)

// A Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// requestTimeout bounds every call so a hung transport resolves to a load
// failure instead of leaving the UI in its loading state indefinitely.
const requestTimeout = 15 * time.Second

// Client issues requests against the Connected REST API.
type Client struct {
	BaseURL string
	// Token, when non-empty, is attached to every request as a bearer
	// credential.
	Token  string
	HTTP   Doer
	Logger *slog.Logger
	Val    *validator.Validator

	once sync.Once
}

func (c *Client) setup() {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	if c.Val == nil {
		c.Val = validator.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ListChats returns the chat summaries for the authenticated user, newest
// conversation first as served by the backend.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	type row struct {
		PartnerUserID        int64  `json:"partner_user_id"`
		PartnerUsername      string `json:"partner_username"`
		PartnerAvatarURL     string `json:"partner_avatar_url"`
		MessageText          string `json:"message_text"`
		LastMessageTimestamp string `json:"last_message_timestamp"`
	}

	var rows []row
	if err := c.do(ctx, http.MethodGet, "/api/users/me/chats", nil, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]ChatSummary, len(rows))
	for i, r := range rows {
		out[i] = ChatSummary{
			PartnerID:     r.PartnerUserID,
			PartnerName:   r.PartnerUsername,
			AvatarURL:     r.PartnerAvatarURL,
			Preview:       r.MessageText,
			LastMessageAt: parseTimestamp(r.LastMessageTimestamp),
		}
	}
	return out, nil
}

// ListMessages returns the conversation between selfID and partnerID in
// ascending chronological order. The receiver of each message is derived:
// the backend only reports the sender.
func (c *Client) ListMessages(ctx context.Context, selfID, partnerID int64) ([]Message, error) {
	type row struct {
		SenderUserID int64  `json:"sender_user_id"`
		MessageText  string `json:"message_text"`
		Timestamp    string `json:"timestamp"`
	}

	path := fmt.Sprintf("/api/messages/%d/%d", selfID, partnerID)
	var rows []row
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]Message, len(rows))
	for i, r := range rows {
		receiver := selfID
		if r.SenderUserID == selfID {
			receiver = partnerID
		}
		out[i] = Message{
			SenderID:   r.SenderUserID,
			ReceiverID: receiver,
			Text:       r.MessageText,
			CreatedAt:  parseTimestamp(r.Timestamp),
			Status:     StatusDelivered,
		}
	}
	return out, nil
}

// SendMessage delivers text to receiverID. The sender is derived server-side
// from the credential. The returned message reflects the server's echo.
func (c *Client) SendMessage(ctx context.Context, receiverID int64, text string) (Message, error) {
	type (
		request struct {
			ReceiverID  int64  `json:"receiver_id" validate:"required"`
			MessageText string `json:"message_text" validate:"required"`
		}
		response struct {
			SenderUserID int64  `json:"sender_user_id"`
			MessageText  string `json:"message_text"`
			Timestamp    string `json:"timestamp"`
		}
	)

	var echo response
	err := c.do(ctx, http.MethodPost, "/api/messages", nil, request{
		ReceiverID:  receiverID,
		MessageText: text,
	}, &echo)
	if err != nil {
		return Message{}, err
	}

	sent := Message{
		SenderID:   echo.SenderUserID,
		ReceiverID: receiverID,
		Text:       echo.MessageText,
		CreatedAt:  parseTimestamp(echo.Timestamp),
		Status:     StatusDelivered,
	}
	if sent.Text == "" {
		sent.Text = text
	}
	return sent, nil
}

// LikePost records a like on a post for userID.
func (c *Client) LikePost(ctx context.Context, postID, userID int64) (ToggleResult, error) {
	return c.createMark(ctx, fmt.Sprintf("/api/posts/%d/likes", postID), userID)
}

// UnlikePost removes userID's like from a post. The legacy backend reads the
// user from a query parameter on DELETE, not from a body.
func (c *Client) UnlikePost(ctx context.Context, postID, userID int64) (ToggleResult, error) {
	return c.deleteMark(ctx, fmt.Sprintf("/api/posts/%d/likes", postID), userID)
}

// SavePost bookmarks a post for userID.
func (c *Client) SavePost(ctx context.Context, postID, userID int64) (ToggleResult, error) {
	return c.createMark(ctx, fmt.Sprintf("/api/posts/%d/saved", postID), userID)
}

// UnsavePost removes a bookmark.
func (c *Client) UnsavePost(ctx context.Context, postID, userID int64) (ToggleResult, error) {
	return c.deleteMark(ctx, fmt.Sprintf("/api/posts/%d/saved", postID), userID)
}

// Follow makes followerID follow followedID.
func (c *Client) Follow(ctx context.Context, followerID, followedID int64) (ToggleResult, error) {
	return c.setFollow(ctx, http.MethodPost, followerID, followedID)
}

// Unfollow removes the follow edge.
func (c *Client) Unfollow(ctx context.Context, followerID, followedID int64) (ToggleResult, error) {
	return c.setFollow(ctx, http.MethodDelete, followerID, followedID)
}

// SearchUsers finds conversation candidates by username prefix. An empty term
// lists everyone the backend is willing to show.
func (c *Client) SearchUsers(ctx context.Context, term string, currentUserID int64) ([]User, error) {
	type row struct {
		UserID            int64  `json:"user_id"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url"`
	}

	q := url.Values{}
	if term != "" {
		q.Set("username", term)
	}
	if currentUserID != 0 {
		q.Set("current_user_id", strconv.FormatInt(currentUserID, 10))
	}

	var rows []row
	if err := c.do(ctx, http.MethodGet, "/api/users/search_for_message", q, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]User, len(rows))
	for i, r := range rows {
		out[i] = User{UserID: r.UserID, Username: r.Username, AvatarURL: r.ProfilePictureURL}
	}
	return out, nil
}

type toggleResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	LikesCount *int   `json:"likes_count"`
}

func (r toggleResponse) result() ToggleResult {
	return ToggleResult{Success: r.Success, Message: r.Message, LikesCount: r.LikesCount}
}

func (c *Client) createMark(ctx context.Context, path string, userID int64) (ToggleResult, error) {
	type request struct {
		UserID int64 `json:"user_id" validate:"required"`
	}
	var res toggleResponse
	if err := c.do(ctx, http.MethodPost, path, nil, request{UserID: userID}, &res); err != nil {
		return ToggleResult{}, err
	}
	return res.result(), nil
}

func (c *Client) deleteMark(ctx context.Context, path string, userID int64) (ToggleResult, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	var res toggleResponse
	if err := c.do(ctx, http.MethodDelete, path, q, nil, &res); err != nil {
		return ToggleResult{}, err
	}
	return res.result(), nil
}

func (c *Client) setFollow(ctx context.Context, method string, followerID, followedID int64) (ToggleResult, error) {
	type request struct {
		FollowerID int64 `json:"follower_id" validate:"required"`
		FollowedID int64 `json:"followed_id" validate:"required"`
	}
	var res toggleResponse
	err := c.do(ctx, method, "/api/follow", nil, request{
		FollowerID: followerID,
		FollowedID: followedID,
	}, &res)
	if err != nil {
		return ToggleResult{}, err
	}
	return res.result(), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	c.once.Do(c.setup)
	op := method + " " + path

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		if err := c.Val.Struct(body); err != nil {
			var inv *validator.Invalid
			if errors.As(err, &inv) {
				return &Error{Kind: KindValidation, Op: op, Err: inv}
			}
			return &Error{Kind: KindValidation, Op: op, Err: err}
		}
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("encode body: %w", err)}
		}
		rd = bytes.NewReader(b)
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.Logger.Info("Request completed", "method", method, "path", path, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Errf(KindAuthRequired, op, "status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Errf(KindLoad, op, "status %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return Errf(KindLoad, op, "decode response: %w", err)
		}
	}
	return nil
}

// timestampFormats covers the shapes the backend has been seen to emit. The
// Flask jsonify path produces RFC 1123; newer endpoints produce RFC 3339.
var timestampFormats = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
