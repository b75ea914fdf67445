package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/store"
)

const channelColumns = `id, account_id, status, resource_type, resource_id, token, external_resource_id,
expires_at, message_number, updated_at`

type channelRepo struct {
	tx pgx.Tx
}

func (r *channelRepo) Find(ctx context.Context, id string) (core.Channel, error) {
	defer store.ObserveDB(ctx, "channels.find")()
	rows, err := r.tx.Query(ctx, `SELECT `+channelColumns+` FROM channels WHERE id=$1`, id)
	if err != nil {
		return core.Channel{}, fmt.Errorf("find channel %s: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanChannel)
	if err != nil {
		return core.Channel{}, fmt.Errorf("find channel %s: %w", id, notFound(err))
	}
	return c, nil
}

func (r *channelRepo) Save(ctx context.Context, c core.Channel) error {
	defer store.ObserveDB(ctx, "channels.save")()
	const q = `INSERT INTO channels (` + channelColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    external_resource_id = EXCLUDED.external_resource_id,
    expires_at = EXCLUDED.expires_at,
    message_number = EXCLUDED.message_number,
    updated_at = EXCLUDED.updated_at`
	_, err := r.tx.Exec(ctx, q, c.ID, c.AccountID, string(c.Status), string(c.ResourceType), c.ResourceID, c.Token,
		c.ExternalResourceID, c.ExpiresAt, c.MessageNumber, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", c.ID, err)
	}
	return nil
}

func (r *channelRepo) FindByResource(ctx context.Context, accountID string, rt core.ResourceType, resourceID string) ([]core.Channel, error) {
	defer store.ObserveDB(ctx, "channels.find_by_resource")()
	return r.query(ctx, `WHERE account_id=$1 AND resource_type=$2 AND resource_id=$3 AND status <> 'CLOSED'`,
		accountID, string(rt), resourceID)
}

func (r *channelRepo) ListByAccount(ctx context.Context, accountID string) ([]core.Channel, error) {
	defer store.ObserveDB(ctx, "channels.list_by_account")()
	return r.query(ctx, `WHERE account_id=$1`, accountID)
}

func (r *channelRepo) ListExpiring(ctx context.Context, before time.Time) ([]core.Channel, error) {
	defer store.ObserveDB(ctx, "channels.list_expiring")()
	return r.query(ctx, `WHERE expires_at < $1 AND status <> 'CLOSED'`, before)
}

func (r *channelRepo) query(ctx context.Context, where string, args ...any) ([]core.Channel, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+channelColumns+` FROM channels `+where+` ORDER BY updated_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	channels, err := pgx.CollectRows(rows, scanChannel)
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	return channels, nil
}

func scanChannel(row pgx.CollectableRow) (core.Channel, error) {
	var (
		c      core.Channel
		status string
		rt     string
	)
	err := row.Scan(&c.ID, &c.AccountID, &status, &rt, &c.ResourceID, &c.Token, &c.ExternalResourceID,
		&c.ExpiresAt, &c.MessageNumber, &c.UpdatedAt)
	if err != nil {
		return core.Channel{}, err
	}
	c.Status = core.ChannelStatus(status)
	c.ResourceType = core.ResourceType(rt)
	return c, nil
}
