// Package histdb caches conversation history in a local SQLite database so
// the messages page can show something before the network answers, and after
// it stops answering. It is a cache, never an authority: every successful
// fetch overwrites it wholesale.
package histdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/connectedapp/connected-client/api"
)

// DB provides local history storage in SQLite.
type DB struct {
	bun *bun.DB
}

// Open opens (creating as needed) the history database at path and ensures
// the schema exists. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())

	for _, model := range []any{(*summary)(nil), (*message)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	return &DB{bun: db}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.bun.Close()
}

// ListSummaries returns the cached chat summaries for selfID, most recent
// conversation first.
func (d *DB) ListSummaries(ctx context.Context, selfID int64) ([]api.ChatSummary, error) {
	var rows []summary
	err := d.bun.NewSelect().
		Model(&rows).
		Where("self_id = ?", selfID).
		Order("last_message_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.ChatSummary, len(rows))
	for i, r := range rows {
		out[i] = r.APISummary()
	}
	return out, nil
}

// PutSummaries replaces the cached summary set for selfID.
func (d *DB) PutSummaries(ctx context.Context, selfID int64, summaries []api.ChatSummary) error {
	rows := make([]summary, len(summaries))
	for i, s := range summaries {
		rows[i] = summary{
			SelfID:        selfID,
			PartnerID:     s.PartnerID,
			PartnerName:   s.PartnerName,
			AvatarURL:     s.AvatarURL,
			Preview:       s.Preview,
			LastMessageAt: s.LastMessageAt,
		}
	}
	return d.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*summary)(nil)).Where("self_id = ?", selfID).Exec(ctx); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
}

// ListMessages returns the cached conversation between selfID and partnerID
// in ascending chronological order.
func (d *DB) ListMessages(ctx context.Context, selfID, partnerID int64) ([]api.Message, error) {
	var rows []message
	err := d.bun.NewSelect().
		Model(&rows).
		Where("self_id = ?", selfID).
		Where("partner_id = ?", partnerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]api.Message, len(rows))
	for i, r := range rows {
		out[i] = r.APIMessage()
	}
	return out, nil
}

// PutMessages replaces the cached conversation between selfID and partnerID.
func (d *DB) PutMessages(ctx context.Context, selfID, partnerID int64, msgs []api.Message) error {
	rows := make([]message, len(msgs))
	for i, m := range msgs {
		rows[i] = messageRow(selfID, partnerID, m)
	}
	return d.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*message)(nil)).
			Where("self_id = ?", selfID).
			Where("partner_id = ?", partnerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
}

// InsertMessage appends one message to the cached conversation. Replaying the
// same local id overwrites instead of duplicating.
func (d *DB) InsertMessage(ctx context.Context, selfID, partnerID int64, msg api.Message) error {
	row := messageRow(selfID, partnerID, msg)
	_, err := d.bun.NewInsert().
		Model(&row).
		On("CONFLICT (local_id) DO UPDATE").
		Set("message_text = EXCLUDED.message_text").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// messageRow maps an API message onto a row. Server-fetched messages carry no
// local id, so a surrogate key is minted for them.
func messageRow(selfID, partnerID int64, m api.Message) message {
	localID := m.LocalID
	if localID == "" {
		localID = uuid.NewString()
	}
	return message{
		LocalID:    localID,
		SelfID:     selfID,
		PartnerID:  partnerID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}
