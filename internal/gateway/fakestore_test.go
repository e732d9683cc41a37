package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmougeot/alarm-server/internal/store"
)

// fakeStore is a minimal in-memory store.Store used only by gateway tests. It
// keeps no indices beyond plain slices/maps and is guarded by a single mutex —
// adequate for exercising the dispatcher and broadcaster without a database.
type fakeStore struct {
	mu sync.Mutex

	pages       map[uuid.UUID]store.Page
	permissions map[uuid.UUID][]store.PagePermission // pageID -> rows
	groupMembers map[uuid.UUID]map[uuid.UUID]struct{} // groupID -> userIDs
	groupsOfUser map[uuid.UUID]map[uuid.UUID]struct{} // userID -> groupIDs
	alarms      map[uuid.UUID]store.Alarm
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pages:        make(map[uuid.UUID]store.Page),
		permissions:  make(map[uuid.UUID][]store.PagePermission),
		groupMembers: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		groupsOfUser: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		alarms:       make(map[uuid.UUID]store.Alarm),
	}
}

var _ store.Store = (*fakeStore)(nil)

func (f *fakeStore) ListPagesWithGroupPermission(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pageIDs []uuid.UUID
	for pageID, rows := range f.permissions {
		for _, row := range rows {
			if row.Subject.Type == store.SubjectGroup && row.Subject.ID == groupID {
				pageIDs = append(pageIDs, pageID)
				break
			}
		}
	}
	return pageIDs, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	return store.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) FindUserByUsername(ctx context.Context, username string) (store.User, error) {
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	return store.User{ID: id}, nil
}

func (f *fakeStore) CreateGroup(ctx context.Context, name string, creatorID uuid.UUID) (store.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := store.Group{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	f.groupMembers[g.ID] = map[uuid.UUID]struct{}{creatorID: {}}
	f.addGroupLocked(creatorID, g.ID)
	return g, nil
}

func (f *fakeStore) addGroupLocked(userID, groupID uuid.UUID) {
	set, ok := f.groupsOfUser[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		f.groupsOfUser[userID] = set
	}
	set[groupID] = struct{}{}
}

func (f *fakeStore) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.groupMembers[groupID]
	if !ok {
		return store.ErrNotFound
	}
	if _, exists := members[userID]; exists {
		return store.ErrAlreadyMember
	}
	members[userID] = struct{}{}
	f.addGroupLocked(userID, groupID)
	return nil
}

func (f *fakeStore) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groupMembers[groupID], userID)
	delete(f.groupsOfUser[userID], groupID)
	return nil
}

func (f *fakeStore) ListGroupsOfUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id := range f.groupsOfUser[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) ListMembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id := range f.groupMembers[groupID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) ListGroups(ctx context.Context, ownerID uuid.UUID) ([]store.Group, error) {
	return nil, nil
}

func (f *fakeStore) CreatePage(ctx context.Context, name string, ownerID uuid.UUID) (store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := store.Page{ID: uuid.New(), Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	f.pages[p.ID] = p
	return p, nil
}

func (f *fakeStore) ListPagesVisibleTo(ctx context.Context, userID uuid.UUID) ([]store.VisiblePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.VisiblePage
	for _, p := range f.pages {
		if p.OwnerID == userID {
			out = append(out, store.VisiblePage{Page: p, IsOwner: true, CanEdit: true})
			continue
		}
		for _, row := range f.permissions[p.ID] {
			if row.Subject.Type == store.SubjectUser && row.Subject.ID == userID && (row.CanView || row.CanEdit) {
				out = append(out, store.VisiblePage{Page: p, CanEdit: row.CanEdit})
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetPage(ctx context.Context, pageID uuid.UUID) (store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[pageID]
	if !ok {
		return store.Page{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertPermission(ctx context.Context, pageID uuid.UUID, subject store.Subject, canView, canEdit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageID]
	if !ok {
		return store.ErrNotFound
	}
	if subject.Type == store.SubjectUser && subject.ID == page.OwnerID {
		return store.ErrInvalidSubject
	}
	rows := f.permissions[pageID]
	for i, row := range rows {
		if row.Subject == subject {
			rows[i].CanView = canView
			rows[i].CanEdit = canEdit
			rows[i].UpdatedAt = time.Now()
			return nil
		}
	}
	f.permissions[pageID] = append(rows, store.PagePermission{
		PageID: pageID, Subject: subject, CanView: canView, CanEdit: canEdit, UpdatedAt: time.Now(),
	})
	return nil
}

func (f *fakeStore) DeletePermission(ctx context.Context, pageID uuid.UUID, subject store.Subject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.permissions[pageID]
	for i, row := range rows {
		if row.Subject == subject {
			f.permissions[pageID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListPermissions(ctx context.Context, pageID uuid.UUID) ([]store.PagePermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.PagePermission(nil), f.permissions[pageID]...), nil
}

func (f *fakeStore) CreateAlarm(ctx context.Context, pageID uuid.UUID, ticker, option, condition string, createdBy uuid.UUID) (store.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pages[pageID]; !ok {
		return store.Alarm{}, store.ErrNotFound
	}
	a := store.Alarm{
		ID: uuid.New(), PageID: pageID, Ticker: ticker, Option: option, Condition: condition,
		CreatedBy: createdBy, Active: true, CreatedAt: time.Now(),
	}
	f.alarms[a.ID] = a
	return a, nil
}

func (f *fakeStore) UpdateAlarm(ctx context.Context, alarmID uuid.UUID, patch store.AlarmPatch) (store.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alarms[alarmID]
	if !ok {
		return store.Alarm{}, store.ErrNotFound
	}
	if patch.Ticker != nil {
		a.Ticker = *patch.Ticker
	}
	if patch.Option != nil {
		a.Option = *patch.Option
	}
	if patch.Condition != nil {
		a.Condition = *patch.Condition
	}
	if patch.Active != nil {
		a.Active = *patch.Active
	}
	f.alarms[alarmID] = a
	return a, nil
}

func (f *fakeStore) DeleteAlarm(ctx context.Context, alarmID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alarms[alarmID]
	if !ok {
		return uuid.Nil, store.ErrNotFound
	}
	delete(f.alarms, alarmID)
	return a.PageID, nil
}

func (f *fakeStore) TriggerAlarm(ctx context.Context, alarmID, byUserID uuid.UUID, price *float64) (store.Alarm, store.AlarmEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alarms[alarmID]
	if !ok {
		return store.Alarm{}, store.AlarmEvent{}, store.ErrNotFound
	}
	now := time.Now()
	a.LastTriggered = &now
	f.alarms[alarmID] = a
	event := store.AlarmEvent{ID: uuid.New(), AlarmID: alarmID, TriggeredBy: byUserID, Price: price, TriggeredAt: now}
	return a, event, nil
}

func (f *fakeStore) GetAlarm(ctx context.Context, alarmID uuid.UUID) (store.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alarms[alarmID]
	if !ok {
		return store.Alarm{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListAlarmsInPages(ctx context.Context, pageIDs []uuid.UUID) ([]store.Alarm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(pageIDs))
	for _, id := range pageIDs {
		want[id] = struct{}{}
	}
	var out []store.Alarm
	for _, a := range f.alarms {
		if _, ok := want[a.PageID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UsersWithViewAccess(ctx context.Context, pageID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := map[uuid.UUID]struct{}{page.OwnerID: {}}
	for _, row := range f.permissions[pageID] {
		if !row.CanView && !row.CanEdit {
			continue
		}
		switch row.Subject.Type {
		case store.SubjectUser:
			out[row.Subject.ID] = struct{}{}
		case store.SubjectGroup:
			for member := range f.groupMembers[row.Subject.ID] {
				out[member] = struct{}{}
			}
		}
	}
	return out, nil
}
