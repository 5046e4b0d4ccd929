package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"notevault/api/internal/auth"
	"notevault/api/internal/config"
	"notevault/api/internal/store"
)

type fakeStore struct {
	pingFn testFn

	createCompanyWithOwnerFn func(context.Context, store.Company, store.User) (store.User, store.Company, error)
	getUserByEmailFn         func(context.Context, string) (store.User, error)
	getUserByIDFn            func(context.Context, string) (store.User, error)

	workspaceSlugTakenFn func(context.Context, string, string) (bool, error)
	insertWorkspaceFn    func(context.Context, store.Workspace) (store.Workspace, error)
	getWorkspaceFn       func(context.Context, string) (store.Workspace, error)
	listWorkspacesFn     func(context.Context, string, int, int) ([]store.Workspace, int, error)
	updateWorkspaceFn    func(context.Context, string, string, string, string) (store.Workspace, error)
	deleteWorkspaceFn    func(context.Context, string) error

	createNoteFn         func(context.Context, store.Note, []string) (store.Note, error)
	getNoteFn            func(context.Context, string) (store.Note, error)
	updateNoteFn         func(context.Context, string, store.NoteUpdate) (store.Note, error)
	deleteNoteFn         func(context.Context, string) error
	setNoteStatusFn      func(context.Context, string, string) (store.Note, error)
	listPublicNotesFn    func(context.Context, store.PublicNotesQuery) ([]store.Note, int, error)
	listWorkspaceNotesFn func(context.Context, store.WorkspaceNotesQuery) ([]store.Note, int, error)
	listUserNotesFn      func(context.Context, string, int, int) ([]store.Note, int, error)
	listNotesByTagFn     func(context.Context, string, int, int) ([]store.Note, int, error)
	noteTagsFn           func(context.Context, string) ([]store.Tag, error)
	tagsForNotesFn       func(context.Context, []string) (map[string][]store.Tag, error)

	getVoteFn         func(context.Context, string, string) (store.Vote, error)
	castVoteFn        func(context.Context, store.Vote) (store.Vote, error)
	changeVoteFn      func(context.Context, string, string, string) (store.Vote, error)
	removeVoteFn      func(context.Context, string, string) error
	noteVoteSummaryFn func(context.Context, string, string) (store.VoteSummary, error)
	voteSummariesFn   func(context.Context, []string, string) (map[string]store.VoteSummary, error)

	listHistoryFn        func(context.Context, string, int, int) ([]store.HistoryEntry, int, error)
	getHistoryEntryFn    func(context.Context, string) (store.HistoryEntry, error)
	restoreFromHistoryFn func(context.Context, string, string, string) (store.Note, error)
	deleteHistoryEntryFn func(context.Context, string) error
	pruneHistoryFn       func(context.Context, time.Time) (int64, error)

	listTagsFn     func(context.Context, int, int) ([]store.Tag, int, error)
	getTagBySlugFn func(context.Context, string) (store.Tag, error)
	popularTagsFn  func(context.Context, int) ([]store.Tag, error)
	searchTagsFn   func(context.Context, string, int) ([]store.Tag, error)
}

type testFn func(context.Context) error

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) CreateCompanyWithOwner(ctx context.Context, company store.Company, owner store.User) (store.User, store.Company, error) {
	if f.createCompanyWithOwnerFn != nil {
		return f.createCompanyWithOwnerFn(ctx, company, owner)
	}
	return owner, company, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) WorkspaceSlugTaken(ctx context.Context, companyID, slug string) (bool, error) {
	if f.workspaceSlugTakenFn != nil {
		return f.workspaceSlugTakenFn(ctx, companyID, slug)
	}
	return false, nil
}

func (f *fakeStore) InsertWorkspace(ctx context.Context, ws store.Workspace) (store.Workspace, error) {
	if f.insertWorkspaceFn != nil {
		return f.insertWorkspaceFn(ctx, ws)
	}
	return ws, nil
}

func (f *fakeStore) GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	if f.getWorkspaceFn != nil {
		return f.getWorkspaceFn(ctx, workspaceID)
	}
	return store.Workspace{}, sql.ErrNoRows
}

func (f *fakeStore) ListWorkspaces(ctx context.Context, companyID string, offset, limit int) ([]store.Workspace, int, error) {
	if f.listWorkspacesFn != nil {
		return f.listWorkspacesFn(ctx, companyID, offset, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) UpdateWorkspace(ctx context.Context, workspaceID, name, slug, description string) (store.Workspace, error) {
	if f.updateWorkspaceFn != nil {
		return f.updateWorkspaceFn(ctx, workspaceID, name, slug, description)
	}
	return store.Workspace{ID: workspaceID, Name: name, Slug: slug, Description: description}, nil
}

func (f *fakeStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if f.deleteWorkspaceFn != nil {
		return f.deleteWorkspaceFn(ctx, workspaceID)
	}
	return nil
}

func (f *fakeStore) CreateNote(ctx context.Context, note store.Note, tags []string) (store.Note, error) {
	if f.createNoteFn != nil {
		return f.createNoteFn(ctx, note, tags)
	}
	return note, nil
}

func (f *fakeStore) GetNote(ctx context.Context, noteID string) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, noteID)
	}
	return store.Note{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateNote(ctx context.Context, noteID string, upd store.NoteUpdate) (store.Note, error) {
	if f.updateNoteFn != nil {
		return f.updateNoteFn(ctx, noteID, upd)
	}
	return store.Note{ID: noteID}, nil
}

func (f *fakeStore) DeleteNote(ctx context.Context, noteID string) error {
	if f.deleteNoteFn != nil {
		return f.deleteNoteFn(ctx, noteID)
	}
	return nil
}

func (f *fakeStore) SetNoteStatus(ctx context.Context, noteID, status string) (store.Note, error) {
	if f.setNoteStatusFn != nil {
		return f.setNoteStatusFn(ctx, noteID, status)
	}
	return store.Note{ID: noteID, Status: status}, nil
}

func (f *fakeStore) ListPublicNotes(ctx context.Context, q store.PublicNotesQuery) ([]store.Note, int, error) {
	if f.listPublicNotesFn != nil {
		return f.listPublicNotesFn(ctx, q)
	}
	return nil, 0, nil
}

func (f *fakeStore) ListWorkspaceNotes(ctx context.Context, q store.WorkspaceNotesQuery) ([]store.Note, int, error) {
	if f.listWorkspaceNotesFn != nil {
		return f.listWorkspaceNotesFn(ctx, q)
	}
	return nil, 0, nil
}

func (f *fakeStore) ListUserNotes(ctx context.Context, userID string, offset, limit int) ([]store.Note, int, error) {
	if f.listUserNotesFn != nil {
		return f.listUserNotesFn(ctx, userID, offset, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) ListNotesByTag(ctx context.Context, tagID string, offset, limit int) ([]store.Note, int, error) {
	if f.listNotesByTagFn != nil {
		return f.listNotesByTagFn(ctx, tagID, offset, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) NoteTags(ctx context.Context, noteID string) ([]store.Tag, error) {
	if f.noteTagsFn != nil {
		return f.noteTagsFn(ctx, noteID)
	}
	return nil, nil
}

func (f *fakeStore) TagsForNotes(ctx context.Context, noteIDs []string) (map[string][]store.Tag, error) {
	if f.tagsForNotesFn != nil {
		return f.tagsForNotesFn(ctx, noteIDs)
	}
	return map[string][]store.Tag{}, nil
}

func (f *fakeStore) GetVote(ctx context.Context, noteID, userID string) (store.Vote, error) {
	if f.getVoteFn != nil {
		return f.getVoteFn(ctx, noteID, userID)
	}
	return store.Vote{}, sql.ErrNoRows
}

func (f *fakeStore) CastVote(ctx context.Context, vote store.Vote) (store.Vote, error) {
	if f.castVoteFn != nil {
		return f.castVoteFn(ctx, vote)
	}
	return vote, nil
}

func (f *fakeStore) ChangeVote(ctx context.Context, noteID, userID, voteType string) (store.Vote, error) {
	if f.changeVoteFn != nil {
		return f.changeVoteFn(ctx, noteID, userID, voteType)
	}
	return store.Vote{}, sql.ErrNoRows
}

func (f *fakeStore) RemoveVote(ctx context.Context, noteID, userID string) error {
	if f.removeVoteFn != nil {
		return f.removeVoteFn(ctx, noteID, userID)
	}
	return sql.ErrNoRows
}

func (f *fakeStore) NoteVoteSummary(ctx context.Context, noteID, userID string) (store.VoteSummary, error) {
	if f.noteVoteSummaryFn != nil {
		return f.noteVoteSummaryFn(ctx, noteID, userID)
	}
	return store.VoteSummary{}, nil
}

func (f *fakeStore) VoteSummaries(ctx context.Context, noteIDs []string, userID string) (map[string]store.VoteSummary, error) {
	if f.voteSummariesFn != nil {
		return f.voteSummariesFn(ctx, noteIDs, userID)
	}
	return map[string]store.VoteSummary{}, nil
}

func (f *fakeStore) ListHistory(ctx context.Context, noteID string, offset, limit int) ([]store.HistoryEntry, int, error) {
	if f.listHistoryFn != nil {
		return f.listHistoryFn(ctx, noteID, offset, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) GetHistoryEntry(ctx context.Context, historyID string) (store.HistoryEntry, error) {
	if f.getHistoryEntryFn != nil {
		return f.getHistoryEntryFn(ctx, historyID)
	}
	return store.HistoryEntry{}, sql.ErrNoRows
}

func (f *fakeStore) RestoreFromHistory(ctx context.Context, noteID, historyID, updatedBy string) (store.Note, error) {
	if f.restoreFromHistoryFn != nil {
		return f.restoreFromHistoryFn(ctx, noteID, historyID, updatedBy)
	}
	return store.Note{ID: noteID}, nil
}

func (f *fakeStore) DeleteHistoryEntry(ctx context.Context, historyID string) error {
	if f.deleteHistoryEntryFn != nil {
		return f.deleteHistoryEntryFn(ctx, historyID)
	}
	return nil
}

func (f *fakeStore) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.pruneHistoryFn != nil {
		return f.pruneHistoryFn(ctx, cutoff)
	}
	return 0, nil
}

func (f *fakeStore) ListTags(ctx context.Context, offset, limit int) ([]store.Tag, int, error) {
	if f.listTagsFn != nil {
		return f.listTagsFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) GetTagBySlug(ctx context.Context, slug string) (store.Tag, error) {
	if f.getTagBySlugFn != nil {
		return f.getTagBySlugFn(ctx, slug)
	}
	return store.Tag{}, sql.ErrNoRows
}

func (f *fakeStore) PopularTags(ctx context.Context, limit int) ([]store.Tag, error) {
	if f.popularTagsFn != nil {
		return f.popularTagsFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeStore) SearchTags(ctx context.Context, query string, limit int) ([]store.Tag, error) {
	if f.searchTagsFn != nil {
		return f.searchTagsFn(ctx, query, limit)
	}
	return nil, nil
}

// fakeCache records everything the service does to it.
type fakeCache struct {
	mu       sync.Mutex
	values   map[string]string
	sets     []string
	deletes  []string
	failGets bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGets {
		return "", false, context.DeadlineExceeded
	}
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.sets = append(c.sets, key)
	return nil
}

func (c *fakeCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	n := len(c.values)
	c.values = map[string]string{}
	return n, nil
}

func (c *fakeCache) deleteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deletes)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "test-secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		PublicCacheTTL:   time.Minute,
		HistoryRetention: 7 * 24 * time.Hour,
	}
}

func newTestService(st *fakeStore, cache *fakeCache) *Service {
	if cache == nil {
		return NewService(testConfig(), st, nil, zerolog.Nop())
	}
	return NewService(testConfig(), st, cache, zerolog.Nop())
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)
	cases := []RegisterInput{
		{Email: "", Password: "longenough", FirstName: "A", LastName: "B", CompanyName: "C"},
		{Email: "not-an-email", Password: "longenough", FirstName: "A", LastName: "B", CompanyName: "C"},
		{Email: "a@b.co", Password: "short", FirstName: "A", LastName: "B", CompanyName: "C"},
		{Email: "a@b.co", Password: "longenough", FirstName: "", LastName: "B", CompanyName: "C"},
		{Email: "a@b.co", Password: "longenough", FirstName: "A", LastName: "B", CompanyName: ""},
	}
	for _, input := range cases {
		_, err := svc.Register(context.Background(), input)
		assertDomainStatus(t, err, 400)
	}
}

func TestRegisterIssuesTokensForOwner(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)
	result, err := svc.Register(context.Background(), RegisterInput{
		Email:       "Owner@Example.com",
		Password:    "longenough",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		CompanyName: "Acme",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.User.Role != store.RoleOwner {
		t.Fatalf("expected OWNER role, got %s", result.User.Role)
	}
	if result.User.Email != "owner@example.com" {
		t.Fatalf("expected lowercased email, got %s", result.User.Email)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	claims, err := auth.ParseToken([]byte("test-secret"), result.AccessToken)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.CompanyID != result.User.CompanyID {
		t.Fatal("token companyId does not match the created company")
	}
}

func TestLoginDoesNotLeakWhichCredentialFailed(t *testing.T) {
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	svc := newTestService(&fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if email == "known@example.com" {
				return store.User{ID: "user_1", Email: email, PasswordHash: hash, CompanyID: "comp_1"}, nil
			}
			return store.User{}, sql.ErrNoRows
		},
	}, nil)

	_, unknownErr := svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: "whatever"})
	_, badPassErr := svc.Login(context.Background(), LoginInput{Email: "known@example.com", Password: "wrong"})

	assertDomainStatus(t, unknownErr, 401)
	assertDomainStatus(t, badPassErr, 401)
	if unknownErr.Error() != badPassErr.Error() {
		t.Fatal("unknown email and bad password must produce identical errors")
	}

	if _, err := svc.Login(context.Background(), LoginInput{Email: "Known@example.com", Password: "correct-password"}); err != nil {
		t.Fatalf("valid login failed: %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	svc := newTestService(&fakeStore{}, nil)
	expired, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub: "user_1", CompanyID: "comp_1", JTI: "x",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	_, err = svc.Refresh(context.Background(), expired)
	assertDomainStatus(t, err, 401)
}

func assertDomainStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", status)
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Message)
	}
}
