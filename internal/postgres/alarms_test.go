package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jmougeot/alarm-server/internal/store"
)

// fakeRow satisfies pgx.Row by scanning a fixed store.Alarm's fields in the
// exact order scanAlarm expects, so UpdateAlarm's no-op branch (which calls
// GetAlarm, which calls scanAlarm) can be exercised without a live database.
type fakeRow struct {
	alarm store.Alarm
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 9 {
		return errors.New("fakeRow: unexpected destination count")
	}
	*dest[0].(*uuid.UUID) = r.alarm.ID
	*dest[1].(*uuid.UUID) = r.alarm.PageID
	*dest[2].(*string) = r.alarm.Ticker
	*dest[3].(*string) = r.alarm.Option
	*dest[4].(*string) = r.alarm.Condition
	*dest[5].(*uuid.UUID) = r.alarm.CreatedBy
	*dest[6].(*bool) = r.alarm.Active
	*dest[7].(*time.Time) = r.alarm.CreatedAt
	*dest[8].(**time.Time) = r.alarm.LastTriggered
	return nil
}

// fakeAlarmPool is a dbPool that only understands the single-row SELECT
// GetAlarm issues against a known alarm id.
type fakeAlarmPool struct {
	alarm store.Alarm
}

func (f *fakeAlarmPool) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	id, _ := args[0].(uuid.UUID)
	if id != f.alarm.ID {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{alarm: f.alarm}
}

func (f *fakeAlarmPool) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeAlarmPool: Query not supported")
}

func (f *fakeAlarmPool) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("fakeAlarmPool: Exec not supported")
}

func (f *fakeAlarmPool) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeAlarmPool: Begin not supported")
}

func TestUpdateAlarmWithEmptyPatchIsNoOp(t *testing.T) {
	t.Parallel()

	alarmID := uuid.New()
	lastTriggered := time.Now().Add(-time.Hour).UTC()
	want := store.Alarm{
		ID:            alarmID,
		PageID:        uuid.New(),
		Ticker:        "AAPL",
		Option:        "call",
		Condition:     "price > 200",
		CreatedBy:     uuid.New(),
		Active:        true,
		CreatedAt:     time.Now().Add(-24 * time.Hour).UTC(),
		LastTriggered: &lastTriggered,
	}

	s := &Store{pool: &fakeAlarmPool{alarm: want}}

	got, err := s.UpdateAlarm(context.Background(), alarmID, store.AlarmPatch{})
	if err != nil {
		t.Fatalf("UpdateAlarm returned error: %v", err)
	}
	if got != want {
		t.Errorf("UpdateAlarm with empty patch = %+v, want unchanged %+v", got, want)
	}
}

func TestUpdateAlarmWithUnknownIDReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := &Store{pool: &fakeAlarmPool{alarm: store.Alarm{ID: uuid.New()}}}

	_, err := s.UpdateAlarm(context.Background(), uuid.New(), store.AlarmPatch{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want store.ErrNotFound", err)
	}
}
