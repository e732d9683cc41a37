// Package authz implements the pure permission-resolution logic that sits
// between the Store and every component that needs an access decision. It
// performs no I/O of its own: callers fetch the rows, authz unions them.
package authz

import (
	"github.com/google/uuid"

	"github.com/jmougeot/alarm-server/internal/store"
)

// Verdict is the effective permission set a user holds on a page.
type Verdict struct {
	View  bool
	Edit  bool
	Share bool
}

// Resolve implements the five-rule algorithm: owner short-circuit, union of
// direct and group-mediated grants, edit-implies-view, and share limited to
// the owner alone. groupsOfUser is the set of group ids the user belongs to;
// rows is every page_permissions row on the page (the caller fetches both,
// typically from the same transaction that gates a mutation).
func Resolve(userID uuid.UUID, page store.Page, groupsOfUser map[uuid.UUID]struct{}, rows []store.PagePermission) Verdict {
	if page.OwnerID == userID {
		return Verdict{View: true, Edit: true, Share: true}
	}

	var view, edit bool
	for _, row := range rows {
		if !subjectMatches(row.Subject, userID, groupsOfUser) {
			continue
		}
		view = view || row.CanView
		edit = edit || row.CanEdit
	}
	if edit {
		view = true
	}

	return Verdict{View: view, Edit: edit, Share: false}
}

func subjectMatches(subject store.Subject, userID uuid.UUID, groupsOfUser map[uuid.UUID]struct{}) bool {
	switch subject.Type {
	case store.SubjectUser:
		return subject.ID == userID
	case store.SubjectGroup:
		_, ok := groupsOfUser[subject.ID]
		return ok
	default:
		return false
	}
}

// Audience computes the set of user ids entitled to view a page: the owner,
// every direct user grant with can_view or can_edit, and every member of a
// group grant with can_view or can_edit. membersOf resolves a group id to its
// member user ids; it is called only for groups that actually appear with
// can_view or can_edit among rows.
func Audience(page store.Page, rows []store.PagePermission, membersOf func(groupID uuid.UUID) ([]uuid.UUID, error)) (map[uuid.UUID]struct{}, error) {
	audience := map[uuid.UUID]struct{}{page.OwnerID: {}}

	for _, row := range rows {
		// Edit-without-view stored rows contribute too: the resolver treats
		// edit as implying view, and audience must agree with that verdict.
		if !row.CanView && !row.CanEdit {
			continue
		}
		switch row.Subject.Type {
		case store.SubjectUser:
			audience[row.Subject.ID] = struct{}{}
		case store.SubjectGroup:
			members, err := membersOf(row.Subject.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range members {
				audience[m] = struct{}{}
			}
		}
	}
	return audience, nil
}

// GroupSet is a small convenience for building the membership set Resolve expects.
func GroupSet(groupIDs []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		set[id] = struct{}{}
	}
	return set
}
