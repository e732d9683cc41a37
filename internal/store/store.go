package store

import (
	"context"

	"github.com/google/uuid"
)

// Store is the atomic boundary over all durable state. Every mutating operation
// either succeeds in full or has no effect; implementations realize this with a
// single database transaction per call (see internal/postgres for the pgx/v5
// implementation). Authorization reads that gate a mutation are ordinary,
// separate Store calls made immediately beforehand — not wrapped in the
// mutation's own transaction — so the caller always resolves against the
// latest committed grants rather than a decision cached across calls. A grant
// revoked between the read and the write simply loses the race to the next
// command; the Store itself never caches permission decisions.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)

	CreateGroup(ctx context.Context, name string, creatorID uuid.UUID) (Group, error)
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error
	ListGroupsOfUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListMembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	ListGroups(ctx context.Context, ownerID uuid.UUID) ([]Group, error)

	CreatePage(ctx context.Context, name string, ownerID uuid.UUID) (Page, error)
	ListPagesVisibleTo(ctx context.Context, userID uuid.UUID) ([]VisiblePage, error)
	GetPage(ctx context.Context, pageID uuid.UUID) (Page, error)

	UpsertPermission(ctx context.Context, pageID uuid.UUID, subject Subject, canView, canEdit bool) error
	DeletePermission(ctx context.Context, pageID uuid.UUID, subject Subject) error
	ListPermissions(ctx context.Context, pageID uuid.UUID) ([]PagePermission, error)
	// ListPagesWithGroupPermission returns every page that holds a permission
	// row naming groupID as its subject, regardless of can_view/can_edit. Used
	// to find which pages need an audience re-diff after a group's membership
	// changes.
	ListPagesWithGroupPermission(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)

	CreateAlarm(ctx context.Context, pageID uuid.UUID, ticker, option, condition string, createdBy uuid.UUID) (Alarm, error)
	UpdateAlarm(ctx context.Context, alarmID uuid.UUID, patch AlarmPatch) (Alarm, error)
	DeleteAlarm(ctx context.Context, alarmID uuid.UUID) (pageID uuid.UUID, err error)
	TriggerAlarm(ctx context.Context, alarmID, byUserID uuid.UUID, price *float64) (Alarm, AlarmEvent, error)
	GetAlarm(ctx context.Context, alarmID uuid.UUID) (Alarm, error)
	ListAlarmsInPages(ctx context.Context, pageIDs []uuid.UUID) ([]Alarm, error)

	// UsersWithViewAccess returns the owner plus every user directly granted
	// can_view or can_edit, plus every member of every group granted can_view
	// or can_edit. Used by the
	// Broadcaster to compute fan-out audience; may run outside any transaction.
	UsersWithViewAccess(ctx context.Context, pageID uuid.UUID) (map[uuid.UUID]struct{}, error)
}
