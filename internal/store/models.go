package store

import "time"

const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"

	NoteTypePublic  = "PUBLIC"
	NoteTypePrivate = "PRIVATE"

	NoteStatusDraft     = "DRAFT"
	NoteStatusPublished = "PUBLISHED"

	VoteUpvote   = "UPVOTE"
	VoteDownvote = "DOWNVOTE"
)

type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	CompanyID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the subset of user fields embedded in history entries.
type UserSummary struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

type Workspace struct {
	ID          string
	CompanyID   string
	Name        string
	Slug        string
	Description string
	NoteCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Tag struct {
	ID        string
	Name      string
	Slug      string
	NoteCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note carries CompanyID joined in from the owning workspace so access
// checks never need a second round trip.
type Note struct {
	ID          string
	WorkspaceID string
	CompanyID   string
	CreatedBy   string
	Title       string
	Content     string
	Type        string
	Status      string
	Upvotes     int
	Downvotes   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NoteUpdate is a partial update; nil fields are left untouched. Tags are
// replaced wholesale when Tags is non-nil (delete-all-then-recreate, not a
// diff). UpdatedBy is recorded on the history snapshot taken before the
// update is applied.
type NoteUpdate struct {
	Title     *string
	Content   *string
	Type      *string
	Status    *string
	Tags      []string
	HasTags   bool
	UpdatedBy string
}

type HistoryEntry struct {
	ID              string
	NoteID          string
	PreviousTitle   string
	PreviousContent string
	UpdatedBy       string
	UpdatedByUser   UserSummary
	CreatedAt       time.Time
}

type Vote struct {
	NoteID    string
	UserID    string
	Type      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoteSummary is recomputed from the votes table, never read from the
// denormalized note counters.
type VoteSummary struct {
	Upvotes   int
	Downvotes int
	UserVote  *string
}

// PublicNotesQuery narrows the public listing. TagSlugs use OR semantics:
// a note matches when it carries at least one of the slugs.
type PublicNotesQuery struct {
	Search   string
	TagSlugs []string
	Status   string
	Type     string
	SortBy   string
	Offset   int
	Limit    int
}

type WorkspaceNotesQuery struct {
	WorkspaceID string
	Search      string
	Status      string
	Type        string
	Offset      int
	Limit       int
}
