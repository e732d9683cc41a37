package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmougeot/alarm-server/internal/store"
)

// fakeUserStore implements just enough of store.Store for the auth Service's
// tests: user creation and lookup. Every other method panics if called.
type fakeUserStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]store.User
	byName map[string]uuid.UUID
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: make(map[uuid.UUID]store.User), byName: make(map[string]uuid.UUID)}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byName[username]; exists {
		return store.User{}, store.ErrUsernameTaken
	}
	u := store.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	f.byName[username] = u.ID
	return u, nil
}

func (f *fakeUserStore) FindUserByUsername(ctx context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byName[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeUserStore) GetUser(ctx context.Context, id uuid.UUID) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) CreateGroup(context.Context, string, uuid.UUID) (store.Group, error) { panic("unused") }
func (f *fakeUserStore) AddMember(context.Context, uuid.UUID, uuid.UUID) error                { panic("unused") }
func (f *fakeUserStore) RemoveMember(context.Context, uuid.UUID, uuid.UUID) error             { panic("unused") }
func (f *fakeUserStore) ListGroupsOfUser(context.Context, uuid.UUID) ([]uuid.UUID, error)     { panic("unused") }
func (f *fakeUserStore) ListMembersOfGroup(context.Context, uuid.UUID) ([]uuid.UUID, error)   { panic("unused") }
func (f *fakeUserStore) ListGroups(context.Context, uuid.UUID) ([]store.Group, error)         { panic("unused") }
func (f *fakeUserStore) CreatePage(context.Context, string, uuid.UUID) (store.Page, error)    { panic("unused") }
func (f *fakeUserStore) ListPagesVisibleTo(context.Context, uuid.UUID) ([]store.VisiblePage, error) {
	panic("unused")
}
func (f *fakeUserStore) GetPage(context.Context, uuid.UUID) (store.Page, error) { panic("unused") }
func (f *fakeUserStore) UpsertPermission(context.Context, uuid.UUID, store.Subject, bool, bool) error {
	panic("unused")
}
func (f *fakeUserStore) DeletePermission(context.Context, uuid.UUID, store.Subject) error { panic("unused") }
func (f *fakeUserStore) ListPermissions(context.Context, uuid.UUID) ([]store.PagePermission, error) {
	panic("unused")
}
func (f *fakeUserStore) CreateAlarm(context.Context, uuid.UUID, string, string, string, uuid.UUID) (store.Alarm, error) {
	panic("unused")
}
func (f *fakeUserStore) UpdateAlarm(context.Context, uuid.UUID, store.AlarmPatch) (store.Alarm, error) {
	panic("unused")
}
func (f *fakeUserStore) DeleteAlarm(context.Context, uuid.UUID) (uuid.UUID, error) { panic("unused") }
func (f *fakeUserStore) TriggerAlarm(context.Context, uuid.UUID, uuid.UUID, *float64) (store.Alarm, store.AlarmEvent, error) {
	panic("unused")
}
func (f *fakeUserStore) GetAlarm(context.Context, uuid.UUID) (store.Alarm, error) { panic("unused") }
func (f *fakeUserStore) ListAlarmsInPages(context.Context, []uuid.UUID) ([]store.Alarm, error) {
	panic("unused")
}
func (f *fakeUserStore) UsersWithViewAccess(context.Context, uuid.UUID) (map[uuid.UUID]struct{}, error) {
	panic("unused")
}
func (f *fakeUserStore) ListPagesWithGroupPermission(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	panic("unused")
}

var _ store.Store = (*fakeUserStore)(nil)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(newFakeUserStore(), rdb, "test-secret", "https://test.example.com",
		15*time.Minute, 30*24*time.Hour,
		Argon2Params{Memory: 65536, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Register() returned empty tokens")
	}

	_, loginPair, err := svc.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if loginPair.AccessToken == "" {
		t.Fatal("Login() returned empty access token")
	}

	claims, err := ValidateAccessToken(loginPair.AccessToken, "test-secret", "https://test.example.com")
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != user.ID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, user.ID.String())
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "bob", "correct-horse-battery"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Register(ctx, "bob", "another-password")
	if !errors.Is(err, ErrUsernameAlreadyTaken) {
		t.Fatalf("Register() duplicate error = %v, want ErrUsernameAlreadyTaken", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "carol", "correct-horse-battery"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Login(ctx, "carol", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUsername(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	_, _, err := svc.Login(context.Background(), "nobody", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "dave", "correct-horse-battery")
	if err != nil {
		t.Fatal(err)
	}

	newPair, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if newPair.RefreshToken == pair.RefreshToken {
		t.Fatal("Refresh() returned the same refresh token")
	}

	// The old token must now be rejected as reused.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenReused) {
		t.Fatalf("Refresh() with consumed token error = %v, want ErrRefreshTokenReused", err)
	}
}
