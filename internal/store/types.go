// Package store defines the domain types and the durable-state boundary for the
// alarm server: users, groups, memberships, pages, permissions, alarms, and the
// append-only alarm event log.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store operations. Callers compare with errors.Is;
// wrapped context (e.g. which page or username) travels alongside via fmt.Errorf.
var (
	ErrUsernameTaken  = errors.New("username already taken")
	ErrNameTaken      = errors.New("name already taken")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyMember  = errors.New("user is already a member of this group")
	ErrNotOwner       = errors.New("caller is not the page owner")
	ErrInvalidSubject = errors.New("subject does not exist")
	ErrConflict       = errors.New("conflicting state")
)

// SubjectType distinguishes the two kinds of permission grantee.
type SubjectType string

const (
	SubjectUser  SubjectType = "user"
	SubjectGroup SubjectType = "group"
)

// Subject is the sum type `User(id) | Group(id)` from the domain model,
// represented with two columns for SQL portability but exposed as one value at
// every logical boundary.
type Subject struct {
	Type SubjectType
	ID   uuid.UUID
}

// User is an authenticated principal. Usernames are globally unique and
// case-sensitive; there is no email field and no soft-delete — the core never
// removes a user.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Group is a named collection of users. The creator is inserted as the first
// member in the same transaction that creates the group.
type Group struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Page is the sole unit of access control. The owner always has full rights;
// this is never represented as a row in PagePermission.
type Page struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
}

// VisiblePage pairs a page with the viewing user's resolved standing on it, as
// returned by ListPagesVisibleTo for building an initial snapshot.
type VisiblePage struct {
	Page    Page
	IsOwner bool
	CanEdit bool
}

// PagePermission is a stored grant. CanEdit without CanView is legal storage —
// the resolver, not the Store, treats edit as implying view.
type PagePermission struct {
	PageID    uuid.UUID
	Subject   Subject
	CanView   bool
	CanEdit   bool
	UpdatedAt time.Time
}

// AlarmPatch carries the subset of mutable Alarm fields an update_alarm command
// supplies. A nil pointer means "leave unchanged".
type AlarmPatch struct {
	Ticker    *string
	Option    *string
	Condition *string
	Active    *bool
}

// Alarm belongs to exactly one page for its lifetime. The ticker/option/condition
// triple is opaque to the server: never parsed, never evaluated.
type Alarm struct {
	ID            uuid.UUID
	PageID        uuid.UUID
	Ticker        string
	Option        string
	Condition     string
	CreatedBy     uuid.UUID
	Active        bool
	CreatedAt     time.Time
	LastTriggered *time.Time
}

// AlarmEvent is an append-only audit record; rows are only ever inserted.
type AlarmEvent struct {
	ID          uuid.UUID
	AlarmID     uuid.UUID
	TriggeredBy uuid.UUID
	Price       *float64
	TriggeredAt time.Time
}
