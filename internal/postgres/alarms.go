package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmougeot/alarm-server/internal/store"
)

func scanAlarm(row pgx.Row) (store.Alarm, error) {
	var a store.Alarm
	err := row.Scan(&a.ID, &a.PageID, &a.Ticker, &a.Option, &a.Condition, &a.CreatedBy, &a.Active, &a.CreatedAt, &a.LastTriggered)
	return a, err
}

const alarmColumns = "id, page_id, ticker, option, condition, created_by, active, created_at, last_triggered"

// CreateAlarm inserts a new alarm under the given page.
func (s *Store) CreateAlarm(ctx context.Context, pageID uuid.UUID, ticker, option, condition string, createdBy uuid.UUID) (store.Alarm, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO alarms (page_id, ticker, option, condition, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+alarmColumns,
		pageID, ticker, option, condition, createdBy,
	)
	a, err := scanAlarm(row)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.Alarm{}, store.ErrNotFound
		}
		return store.Alarm{}, fail("create alarm", err)
	}
	return a, nil
}

// GetAlarm fetches an alarm by id.
func (s *Store) GetAlarm(ctx context.Context, alarmID uuid.UUID) (store.Alarm, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = $1`, alarmID)
	a, err := scanAlarm(row)
	if err != nil {
		return store.Alarm{}, wrapNotFound(err)
	}
	return a, nil
}

// UpdateAlarm applies a partial patch. Only the supplied fields change;
// page_id and created_by are immutable. An empty patch is a no-op that
// returns the alarm's current state unchanged.
func (s *Store) UpdateAlarm(ctx context.Context, alarmID uuid.UUID, patch store.AlarmPatch) (store.Alarm, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Ticker != nil {
		add("ticker", *patch.Ticker)
	}
	if patch.Option != nil {
		add("option", *patch.Option)
	}
	if patch.Condition != nil {
		add("condition", *patch.Condition)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}

	if len(sets) == 0 {
		return s.GetAlarm(ctx, alarmID)
	}

	args = append(args, alarmID)
	query := "UPDATE alarms SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args)) + " RETURNING " + alarmColumns
	row := s.pool.QueryRow(ctx, query, args...)
	a, err := scanAlarm(row)
	if err != nil {
		return store.Alarm{}, wrapNotFound(err)
	}
	return a, nil
}

// DeleteAlarm removes an alarm and returns the page it belonged to, so the
// caller can compute fan-out without a second round trip.
func (s *Store) DeleteAlarm(ctx context.Context, alarmID uuid.UUID) (uuid.UUID, error) {
	var pageID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`DELETE FROM alarms WHERE id = $1 RETURNING page_id`,
		alarmID,
	).Scan(&pageID)
	if err != nil {
		return uuid.Nil, wrapNotFound(err)
	}
	return pageID, nil
}

// TriggerAlarm updates last_triggered and appends an alarm_event in one
// transaction. This is never idempotent: each call appends a new event row.
func (s *Store) TriggerAlarm(ctx context.Context, alarmID, byUserID uuid.UUID, price *float64) (store.Alarm, store.AlarmEvent, error) {
	var (
		alarm store.Alarm
		event store.AlarmEvent
	)
	err := WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE alarms SET last_triggered = now() WHERE id = $1 RETURNING `+alarmColumns,
			alarmID,
		)
		a, err := scanAlarm(row)
		if err != nil {
			return wrapNotFound(err)
		}
		alarm = a

		row = tx.QueryRow(ctx,
			`INSERT INTO alarm_events (alarm_id, triggered_by, price)
			 VALUES ($1, $2, $3)
			 RETURNING id, alarm_id, triggered_by, price, triggered_at`,
			alarmID, byUserID, price,
		)
		return row.Scan(&event.ID, &event.AlarmID, &event.TriggeredBy, &event.Price, &event.TriggeredAt)
	})
	if err != nil {
		return store.Alarm{}, store.AlarmEvent{}, fail("trigger alarm", err)
	}
	return alarm, event, nil
}

// ListAlarmsInPages returns every alarm belonging to any of the given pages.
func (s *Store) ListAlarmsInPages(ctx context.Context, pageIDs []uuid.UUID) ([]store.Alarm, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+alarmColumns+` FROM alarms WHERE page_id = ANY($1) ORDER BY created_at`,
		pageIDs,
	)
	if err != nil {
		return nil, fail("list alarms in pages", err)
	}
	defer rows.Close()

	var alarms []store.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fail("scan alarm", err)
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}
