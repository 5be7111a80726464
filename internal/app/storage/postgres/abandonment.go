package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/domain/abandonment"
)

const abandonmentColumns = `id, user_id, cart_data, item_count, reminder_stage, reminder_sent_at,
	reminders_sent, is_purchased, purchased_at, created_at, last_updated_at`

type abandonmentRow struct {
	ID             string     `db:"id"`
	UserID         string     `db:"user_id"`
	CartData       []byte     `db:"cart_data"`
	ItemCount      int        `db:"item_count"`
	Stage          string     `db:"reminder_stage"`
	ReminderSentAt *time.Time `db:"reminder_sent_at"`
	RemindersSent  int        `db:"reminders_sent"`
	Purchased      bool       `db:"is_purchased"`
	PurchasedAt    *time.Time `db:"purchased_at"`
	CreatedAt      time.Time  `db:"created_at"`
	LastUpdatedAt  time.Time  `db:"last_updated_at"`
}

func (r abandonmentRow) record() (abandonment.Record, error) {
	stage, err := abandonment.ParseStage(r.Stage)
	if err != nil {
		return abandonment.Record{}, fmt.Errorf("abandonment record %s: %w", r.ID, err)
	}
	return abandonment.Record{
		ID:             r.ID,
		UserID:         r.UserID,
		CartData:       r.CartData,
		ItemCount:      r.ItemCount,
		Stage:          stage,
		ReminderSentAt: r.ReminderSentAt,
		RemindersSent:  r.RemindersSent,
		Purchased:      r.Purchased,
		PurchasedAt:    r.PurchasedAt,
		CreatedAt:      r.CreatedAt,
		LastUpdatedAt:  r.LastUpdatedAt,
	}, nil
}

type candidateRow struct {
	abandonmentRow
	Email string `db:"email"`
	Name  string `db:"name"`
}

// UpsertActive relies on the partial unique index over active rows so the
// insert-or-reset happens in one statement.
func (s *Store) UpsertActive(ctx context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (abandonment.Record, error) {
	raw, err := abandonment.EncodeSnapshot(snapshot)
	if err != nil {
		return abandonment.Record{}, err
	}

	var row abandonmentRow
	err = sqlx.GetContext(ctx, s.q, &row, `
		INSERT INTO cart_abandonments (id, user_id, cart_data, item_count, reminder_stage, reminders_sent,
			is_purchased, created_at, last_updated_at)
		VALUES ($1, $2, $3, $4, 'none', 0, FALSE, $5, $5)
		ON CONFLICT (user_id) WHERE NOT is_purchased
		DO UPDATE SET cart_data = EXCLUDED.cart_data,
			item_count = EXCLUDED.item_count,
			reminder_stage = 'none',
			reminder_sent_at = NULL,
			last_updated_at = EXCLUDED.last_updated_at
		RETURNING `+abandonmentColumns,
		uuid.NewString(), userID, string(raw), len(snapshot), now)
	if err != nil {
		return abandonment.Record{}, mapError(err, "abandonment record", userID)
	}
	return row.record()
}

func (s *Store) ResetActive(ctx context.Context, userID string, snapshot abandonment.Snapshot, now time.Time) (bool, error) {
	raw, err := abandonment.EncodeSnapshot(snapshot)
	if err != nil {
		return false, err
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE cart_abandonments
		SET cart_data = $2, item_count = $3, reminder_stage = 'none', reminder_sent_at = NULL, last_updated_at = $4
		WHERE user_id = $1 AND NOT is_purchased
	`, userID, string(raw), len(snapshot), now)
	if err != nil {
		return false, mapError(err, "abandonment record", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetActive(ctx context.Context, userID string) (abandonment.Record, error) {
	var row abandonmentRow
	if err := sqlx.GetContext(ctx, s.q, &row, `
		SELECT `+abandonmentColumns+`
		FROM cart_abandonments
		WHERE user_id = $1 AND NOT is_purchased
	`, userID); err != nil {
		return abandonment.Record{}, mapError(err, "abandonment record", userID)
	}
	return row.record()
}

func (s *Store) MarkPurchased(ctx context.Context, userID string, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE cart_abandonments
		SET is_purchased = TRUE, purchased_at = $2
		WHERE user_id = $1 AND NOT is_purchased
	`, userID, now)
	if err != nil {
		return false, mapError(err, "abandonment record", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// dueReference is the column a record's next threshold is measured from.
const dueReference = `CASE WHEN a.reminder_stage = 'none' THEN a.last_updated_at ELSE a.reminder_sent_at END`

func (s *Store) ListDue(ctx context.Context, stage abandonment.Stage, cutoff time.Time, after *abandonment.Cursor, limit int) ([]abandonment.Candidate, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []interface{}{string(stage), cutoff}
	keyset := ""
	if after != nil {
		args = append(args, after.RefTime, after.ID)
		keyset = "AND (" + dueReference + ", a.id) > ($3, $4)"
	}
	args = append(args, limit)

	query := `
		SELECT a.id, a.user_id, a.cart_data, a.item_count, a.reminder_stage, a.reminder_sent_at,
			a.reminders_sent, a.is_purchased, a.purchased_at, a.created_at, a.last_updated_at,
			u.email, u.name
		FROM cart_abandonments a
		JOIN users u ON u.id = a.user_id
		WHERE NOT a.is_purchased
			AND u.active
			AND a.item_count > 0
			AND a.reminder_stage = $1
			AND ` + dueReference + ` <= $2
			` + keyset + `
		ORDER BY ` + dueReference + `, a.id
		LIMIT $` + strconv.Itoa(len(args))

	rows := []candidateRow{}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, mapError(err, "abandonment records", string(stage))
	}

	out := make([]abandonment.Candidate, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, abandonment.Candidate{Record: rec, Email: row.Email, Name: row.Name})
	}
	return out, nil
}

// AdvanceStage is a compare-and-set on stage and last_updated_at. A cart
// mutation between the scan and this update makes it a no-op.
func (s *Store) AdvanceStage(ctx context.Context, id string, from, to abandonment.Stage, lastUpdatedAt, sentAt time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE cart_abandonments
		SET reminder_stage = $3, reminder_sent_at = $5, reminders_sent = reminders_sent + 1
		WHERE id = $1 AND reminder_stage = $2 AND last_updated_at = $4 AND NOT is_purchased
	`, id, string(from), string(to), lastUpdatedAt, sentAt)
	if err != nil {
		return false, mapError(err, "abandonment record", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM cart_abandonments
		WHERE (is_purchased OR reminder_stage = 'final') AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, mapError(err, "abandonment records", "")
	}
	return res.RowsAffected()
}

func (s *Store) AbandonmentStats(ctx context.Context) (abandonment.Stats, error) {
	var counts struct {
		None      int `db:"stage_none"`
		First     int `db:"stage_first"`
		Second    int `db:"stage_second"`
		Final     int `db:"stage_final"`
		Purchased int `db:"purchased"`
		Recovered int `db:"recovered"`
	}
	if err := sqlx.GetContext(ctx, s.q, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_purchased AND reminder_stage = 'none') AS stage_none,
			COUNT(*) FILTER (WHERE NOT is_purchased AND reminder_stage = 'first') AS stage_first,
			COUNT(*) FILTER (WHERE NOT is_purchased AND reminder_stage = 'second') AS stage_second,
			COUNT(*) FILTER (WHERE NOT is_purchased AND reminder_stage = 'final') AS stage_final,
			COUNT(*) FILTER (WHERE is_purchased) AS purchased,
			COUNT(*) FILTER (WHERE is_purchased AND reminders_sent > 0) AS recovered
		FROM cart_abandonments
	`); err != nil {
		return abandonment.Stats{}, mapError(err, "abandonment stats", "")
	}

	stats := abandonment.Stats{
		ActiveByStage: map[abandonment.Stage]int{
			abandonment.StageNone:   counts.None,
			abandonment.StageFirst:  counts.First,
			abandonment.StageSecond: counts.Second,
			abandonment.StageFinal:  counts.Final,
		},
		Purchased: counts.Purchased,
		Recovered: counts.Recovered,
	}
	stats.Active = counts.None + counts.First + counts.Second + counts.Final
	return stats, nil
}
