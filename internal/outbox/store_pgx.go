package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

// PgxStore реализует Store для отдельного процесса диспетчера: сырой SQL через pgxpool,
// несколько экземпляров не забирают одни и те же строки благодаря SKIP LOCKED.
type PgxStore struct {
	DB *pgxpool.Pool
}

func NewPgxStore(db *pgxpool.Pool) *PgxStore { return &PgxStore{DB: db} }

const claimSQL = `
	WITH due AS (
		SELECT id FROM notification_outbox
		WHERE status IN ('PENDING', 'RETRY') AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_outbox o
	SET attempt_count = o.attempt_count + 1, next_attempt_at = $3, updated_at = $1
	FROM due
	WHERE o.id = due.id
	RETURNING o.id, o.entity_type, o.entity_id, o.channel, o.template_key, o.payload,
		o.dedupe_key, o.status, o.attempt_count, o.next_attempt_at, o.created_at
`

func (s *PgxStore) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.NotificationOutbox, error) {
	now = now.UTC()
	rows, err := s.DB.Query(ctx, claimSQL, now, ClampBatchSize(limit), now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationOutbox
	for rows.Next() {
		var (
			r               model.NotificationOutbox
			channel, status string
			payload         []byte
			id, entityID    string
		)
		if err := rows.Scan(&id, &r.EntityType, &entityID, &channel, &r.TemplateKey, &payload,
			&r.DedupeKey, &status, &r.AttemptCount, &r.NextAttemptAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("outbox claim id: %w", err)
		}
		if r.EntityID, err = uuid.Parse(entityID); err != nil {
			return nil, fmt.Errorf("outbox claim entity id: %w", err)
		}
		r.Channel = model.OutboxChannel(channel)
		r.Status = model.OutboxStatus(status)
		r.Payload = payload
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgxStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_outbox SET status='SENT', sent_at=$2, last_error='', updated_at=$2 WHERE id=$1
	`, id.String(), at.UTC())
	return wrapExec("mark sent", err)
}

func (s *PgxStore) MarkRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, lastErr string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_outbox SET status='RETRY', next_attempt_at=$2, last_error=$3, updated_at=now() WHERE id=$1
	`, id.String(), nextAt.UTC(), truncateError(lastErr))
	return wrapExec("mark retry", err)
}

func (s *PgxStore) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_outbox SET status='FAILED', last_error=$2, updated_at=now() WHERE id=$1
	`, id.String(), truncateError(lastErr))
	return wrapExec("mark failed", err)
}

func (s *PgxStore) Release(ctx context.Context, id uuid.UUID, nextAt time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE notification_outbox
		SET attempt_count=GREATEST(attempt_count - 1, 0), next_attempt_at=$2, updated_at=now()
		WHERE id=$1
	`, id.String(), nextAt.UTC())
	return wrapExec("release", err)
}

func wrapExec(op string, err error) error {
	if err != nil {
		return fmt.Errorf("outbox %s: %w", op, err)
	}
	return nil
}
