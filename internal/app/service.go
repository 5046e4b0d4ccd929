package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"notevault/api/internal/auth"
	"notevault/api/internal/config"
	"notevault/api/internal/store"
	"notevault/api/internal/util"
)

// Principal identifies the authenticated caller. CompanyID is the tenant
// boundary: every tenant check compares against it. A nil *Principal is an
// anonymous viewer on optional-auth endpoints.
type Principal struct {
	UserID    string
	Email     string
	CompanyID string
	Role      string
}

type dataStore interface {
	Ping(context.Context) error

	CreateCompanyWithOwner(context.Context, store.Company, store.User) (store.User, store.Company, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)

	WorkspaceSlugTaken(context.Context, string, string) (bool, error)
	InsertWorkspace(context.Context, store.Workspace) (store.Workspace, error)
	GetWorkspace(context.Context, string) (store.Workspace, error)
	ListWorkspaces(context.Context, string, int, int) ([]store.Workspace, int, error)
	UpdateWorkspace(context.Context, string, string, string, string) (store.Workspace, error)
	DeleteWorkspace(context.Context, string) error

	CreateNote(context.Context, store.Note, []string) (store.Note, error)
	GetNote(context.Context, string) (store.Note, error)
	UpdateNote(context.Context, string, store.NoteUpdate) (store.Note, error)
	DeleteNote(context.Context, string) error
	SetNoteStatus(context.Context, string, string) (store.Note, error)
	ListPublicNotes(context.Context, store.PublicNotesQuery) ([]store.Note, int, error)
	ListWorkspaceNotes(context.Context, store.WorkspaceNotesQuery) ([]store.Note, int, error)
	ListUserNotes(context.Context, string, int, int) ([]store.Note, int, error)
	ListNotesByTag(context.Context, string, int, int) ([]store.Note, int, error)
	NoteTags(context.Context, string) ([]store.Tag, error)
	TagsForNotes(context.Context, []string) (map[string][]store.Tag, error)

	GetVote(context.Context, string, string) (store.Vote, error)
	CastVote(context.Context, store.Vote) (store.Vote, error)
	ChangeVote(context.Context, string, string, string) (store.Vote, error)
	RemoveVote(context.Context, string, string) error
	NoteVoteSummary(context.Context, string, string) (store.VoteSummary, error)
	VoteSummaries(context.Context, []string, string) (map[string]store.VoteSummary, error)

	ListHistory(context.Context, string, int, int) ([]store.HistoryEntry, int, error)
	GetHistoryEntry(context.Context, string) (store.HistoryEntry, error)
	RestoreFromHistory(context.Context, string, string, string) (store.Note, error)
	DeleteHistoryEntry(context.Context, string) error
	PruneHistory(context.Context, time.Time) (int64, error)

	ListTags(context.Context, int, int) ([]store.Tag, int, error)
	GetTagBySlug(context.Context, string) (store.Tag, error)
	PopularTags(context.Context, int) ([]store.Tag, error)
	SearchTags(context.Context, string, int) ([]store.Tag, error)
}

// cacheClient is the slice of the cache package the service needs. A nil
// client disables caching without disabling the service.
type cacheClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	cache  cacheClient
	logger zerolog.Logger
}

func NewService(cfg config.Config, st dataStore, cache cacheClient, logger zerolog.Logger) *Service {
	return &Service{cfg: cfg, store: st, cache: cache, logger: logger}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publicNotesCachePrefix namespaces the cached public listing responses so
// invalidation can pattern-delete them without touching anything else.
const publicNotesCachePrefix = "public-notes:"

func (s *Service) CachedPublicListing(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("public notes cache read failed")
		return "", false
	}
	return value, ok
}

func (s *Service) StorePublicListing(ctx context.Context, key, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.PublicCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("public notes cache write failed")
	}
}

// invalidatePublicNotes drops every cached public listing. Cache failures
// never fail the mutation that triggered them.
func (s *Service) invalidatePublicNotes(ctx context.Context) {
	if s.cache == nil {
		return
	}
	deleted, err := s.cache.DeletePattern(ctx, publicNotesCachePrefix+"*")
	if err != nil {
		s.logger.Warn().Err(err).Msg("public notes cache invalidation failed")
		return
	}
	if deleted > 0 {
		s.logger.Debug().Int("keys", deleted).Msg("public notes cache invalidated")
	}
}

// Pagination mirrors the page/limit query parameters and the totals block of
// paginated responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// normalizePage clamps page to >= 1 and limit to [1,100] with a default of
// 20, and returns the row offset alongside.
func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}

func paginate(page, limit, total int) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// UserView is the user shape returned by auth endpoints.
type UserView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId"`
}

type WorkspaceView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	NoteCount   int       `json:"noteCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type TagView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type TagCountView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	NoteCount int    `json:"noteCount"`
}

// VotesView carries counts recomputed from the vote ledger. UserVote is the
// lowercase wire form, nil for anonymous viewers and users without a vote.
type VotesView struct {
	Upvotes   int     `json:"upvotes"`
	Downvotes int     `json:"downvotes"`
	UserVote  *string `json:"userVote"`
}

type NoteView struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	CreatedBy   string    `json:"createdBy"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Tags        []TagView `json:"tags"`
	Votes       VotesView `json:"votes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type HistoryView struct {
	ID              string          `json:"id"`
	NoteID          string          `json:"noteId"`
	PreviousTitle   string          `json:"previousTitle"`
	PreviousContent string          `json:"previousContent"`
	UpdatedBy       HistoryUserView `json:"updatedBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type HistoryUserView struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func userView(u store.User) UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CompanyID: u.CompanyID,
	}
}

func workspaceView(w store.Workspace) WorkspaceView {
	return WorkspaceView{
		ID:          w.ID,
		Name:        w.Name,
		Slug:        w.Slug,
		Description: w.Description,
		NoteCount:   w.NoteCount,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func tagViews(tags []store.Tag) []TagView {
	views := make([]TagView, 0, len(tags))
	for _, t := range tags {
		views = append(views, TagView{ID: t.ID, Name: t.Name, Slug: t.Slug})
	}
	return views
}

func historyView(h store.HistoryEntry) HistoryView {
	return HistoryView{
		ID:              h.ID,
		NoteID:          h.NoteID,
		PreviousTitle:   h.PreviousTitle,
		PreviousContent: h.PreviousContent,
		UpdatedBy: HistoryUserView{
			ID:        h.UpdatedByUser.ID,
			FirstName: h.UpdatedByUser.FirstName,
			LastName:  h.UpdatedByUser.LastName,
			Email:     h.UpdatedByUser.Email,
		},
		CreatedAt: h.CreatedAt,
	}
}

// Wire vote types are lowercase; the store keeps the uppercase forms.
func wireVoteType(storeType string) string {
	switch storeType {
	case store.VoteUpvote:
		return "upvote"
	case store.VoteDownvote:
		return "downvote"
	}
	return storeType
}

func storeVoteType(wire string) (string, bool) {
	switch wire {
	case "upvote":
		return store.VoteUpvote, true
	case "downvote":
		return store.VoteDownvote, true
	}
	return "", false
}

func votesView(summary store.VoteSummary) VotesView {
	view := VotesView{Upvotes: summary.Upvotes, Downvotes: summary.Downvotes}
	if summary.UserVote != nil {
		wire := wireVoteType(*summary.UserVote)
		view.UserVote = &wire
	}
	return view
}

func viewerID(viewer *Principal) string {
	if viewer == nil {
		return ""
	}
	return viewer.UserID
}

// noteView assembles the full note shape: tags plus votes recomputed from
// the ledger rather than the denormalized counters.
func (s *Service) noteView(ctx context.Context, note store.Note, viewer *Principal) (NoteView, error) {
	tags, err := s.store.NoteTags(ctx, note.ID)
	if err != nil {
		return NoteView{}, err
	}
	summary, err := s.store.NoteVoteSummary(ctx, note.ID, viewerID(viewer))
	if err != nil {
		return NoteView{}, err
	}
	return noteViewWith(note, tags, summary), nil
}

func noteViewWith(note store.Note, tags []store.Tag, summary store.VoteSummary) NoteView {
	return NoteView{
		ID:          note.ID,
		WorkspaceID: note.WorkspaceID,
		CreatedBy:   note.CreatedBy,
		Title:       note.Title,
		Content:     note.Content,
		Type:        note.Type,
		Status:      note.Status,
		Tags:        tagViews(tags),
		Votes:       votesView(summary),
		CreatedAt:   note.CreatedAt,
		UpdatedAt:   note.UpdatedAt,
	}
}

// noteViews batch-loads tags and vote summaries for a listing page.
func (s *Service) noteViews(ctx context.Context, notes []store.Note, viewer *Principal) ([]NoteView, error) {
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	tagsByNote, err := s.store.TagsForNotes(ctx, ids)
	if err != nil {
		return nil, err
	}
	votesByNote, err := s.store.VoteSummaries(ctx, ids, viewerID(viewer))
	if err != nil {
		return nil, err
	}
	views := make([]NoteView, 0, len(notes))
	for _, n := range notes {
		views = append(views, noteViewWith(n, tagsByNote[n.ID], votesByNote[n.ID]))
	}
	return views, nil
}

func (s *Service) issueToken(user store.User, ttl time.Duration) (string, error) {
	return auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:       user.ID,
		Email:     user.Email,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		JTI:       util.NewID(""),
		Exp:       time.Now().Add(ttl).Unix(),
	})
}
