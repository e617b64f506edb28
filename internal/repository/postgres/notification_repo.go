package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

var _ notification.Store = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepoImpl { return &NotificationRepoImpl{db: db} }

const (
	qNotifInsert = `
INSERT INTO notifications (
  notification_id, recipient_id, recipient_phone, type, priority,
  channels, message, payload, status, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
ON CONFLICT (notification_id) DO NOTHING;
`

	qNotifFinalize = `
UPDATE notifications
SET status         = $2,
    channel_status = $3,
    sent_at        = CASE WHEN $2 = 'sent'   THEN $4 ELSE sent_at   END,
    failed_at      = CASE WHEN $2 = 'failed' THEN $4 ELSE failed_at END
WHERE notification_id = $1 AND status = 'pending';
`

	qNotifByID = `
SELECT notification_id, recipient_id, recipient_phone, type, priority,
       channels, message, payload, status, channel_status,
       created_at, sent_at, failed_at
FROM notifications
WHERE notification_id = $1;
`

	qNotifByRecipient = `
SELECT notification_id, recipient_id, recipient_phone, type, priority,
       channels, message, payload, status, channel_status,
       created_at, sent_at, failed_at
FROM notifications
WHERE recipient_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`

	qNotifCountByRecipient = `
SELECT COUNT(*) FROM notifications WHERE recipient_id = $1;
`
)

func (r *NotificationRepoImpl) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := r.db.Pool.Exec(ctx, qNotifInsert,
		n.ID,
		n.RecipientID,
		nullStr(n.RecipientPhone),
		string(n.Type),
		string(n.Priority),
		channels,
		n.Message,
		payload,
		n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) Finalize(ctx context.Context, id string, patch notification.StatusPatch) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	channelStatus, err := json.Marshal(patch.ChannelStatus)
	if err != nil {
		return false, fmt.Errorf("marshal channel status: %w", err)
	}

	tag, err := r.db.Pool.Exec(ctx, qNotifFinalize,
		id,
		string(patch.Status),
		channelStatus,
		patch.At,
	)
	if err != nil {
		return false, fmt.Errorf("finalize notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepoImpl) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.Pool.QueryRow(ctx, qNotifByID, id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepoImpl) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*notification.Notification, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByRecipient, recipientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, 0, err
		}
		nc := n
		out = append(out, &nc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, qNotifCountByRecipient, recipientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return out, total, nil
}

func scanNotification(row pgx.Row, n *notification.Notification) error {
	var (
		phone         *string
		channels      []byte
		payload       []byte
		channelStatus []byte
	)
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&phone,
		&n.Type,
		&n.Priority,
		&channels,
		&n.Message,
		&payload,
		&n.Status,
		&channelStatus,
		&n.CreatedAt,
		&n.SentAt,
		&n.FailedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan notification: %w", err)
	}
	if phone != nil {
		n.RecipientPhone = *phone
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &n.Channels); err != nil {
			return fmt.Errorf("unmarshal channels: %w", err)
		}
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if len(channelStatus) > 0 {
		if err := json.Unmarshal(channelStatus, &n.ChannelStatus); err != nil {
			return fmt.Errorf("unmarshal channel status: %w", err)
		}
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
