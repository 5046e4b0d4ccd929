package app

import (
	"context"
	"fmt"
	"strings"

	"notevault/api/internal/store"
	"notevault/api/internal/util"
)

type CreateNoteInput struct {
	WorkspaceID string   `json:"workspaceId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
}

// UpdateNoteInput is a partial update: nil fields are left untouched. A
// non-nil Tags replaces the full tag set, empty slice included.
type UpdateNoteInput struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
	Type    *string   `json:"type"`
	Status  *string   `json:"status"`
}

type NoteFilters struct {
	Search string
	Tags   []string
	Status string
	Type   string
	SortBy string
	Page   int
	Limit  int
}

const (
	titleMinLen   = 3
	titleMaxLen   = 200
	contentMaxLen = 100000
)

func validateTitle(title string) error {
	if len(title) < titleMinLen || len(title) > titleMaxLen {
		return validationErr(fmt.Sprintf("title must be between %d and %d characters", titleMinLen, titleMaxLen), nil)
	}
	return nil
}

func validateContent(content string) error {
	if len(content) == 0 || len(content) > contentMaxLen {
		return validationErr(fmt.Sprintf("content must be between 1 and %d characters", contentMaxLen), nil)
	}
	return nil
}

func validateNoteType(noteType string) error {
	if noteType != store.NoteTypePublic && noteType != store.NoteTypePrivate {
		return validationErr("type must be PUBLIC or PRIVATE", nil)
	}
	return nil
}

func validateNoteStatus(status string) error {
	if status != store.NoteStatusDraft && status != store.NoteStatusPublished {
		return validationErr("status must be DRAFT or PUBLISHED", nil)
	}
	return nil
}

// The listing filters accept "all" as an explicit no-filter value.
func filterValue(v string) string {
	if v == "all" {
		return ""
	}
	return v
}

func (s *Service) CreateNote(ctx context.Context, actor Principal, input CreateNoteInput) (NoteView, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return NoteView{}, err
	}
	if err := validateContent(input.Content); err != nil {
		return NoteView{}, err
	}
	if strings.TrimSpace(input.WorkspaceID) == "" {
		return NoteView{}, validationErr("workspaceId is required", nil)
	}

	noteType := input.Type
	if noteType == "" {
		noteType = store.NoteTypePrivate
	}
	if err := validateNoteType(noteType); err != nil {
		return NoteView{}, err
	}
	status := input.Status
	if status == "" {
		status = store.NoteStatusDraft
	}
	if err := validateNoteStatus(status); err != nil {
		return NoteView{}, err
	}

	if _, err := s.workspaceForActor(ctx, actor, input.WorkspaceID); err != nil {
		return NoteView{}, err
	}

	created, err := s.store.CreateNote(ctx, store.Note{
		ID:          util.NewID("note"),
		WorkspaceID: input.WorkspaceID,
		CreatedBy:   actor.UserID,
		Title:       title,
		Content:     input.Content,
		Type:        noteType,
		Status:      status,
	}, input.Tags)
	if err != nil {
		return NoteView{}, err
	}

	// A note born public and published changes the public listing.
	if created.Type == store.NoteTypePublic && created.Status == store.NoteStatusPublished {
		s.invalidatePublicNotes(ctx)
	}
	return s.noteView(ctx, created, &actor)
}

// GetNote enforces the visibility invariant: a note is world-readable only
// while PUBLIC and PUBLISHED; otherwise it is visible to its own tenant and
// Forbidden to everyone else. Forbidden, not NotFound: the note's existence
// is not a secret, its content is.
func (s *Service) GetNote(ctx context.Context, viewer *Principal, noteID string) (NoteView, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		if isNotFound(err) {
			return NoteView{}, notFound("note not found")
		}
		return NoteView{}, err
	}
	if !noteIsWorldReadable(note) {
		if viewer == nil || viewer.CompanyID != note.CompanyID {
			return NoteView{}, forbidden("you do not have access to this note")
		}
	}
	return s.noteView(ctx, note, viewer)
}

func noteIsWorldReadable(note store.Note) bool {
	return note.Type == store.NoteTypePublic && note.Status == store.NoteStatusPublished
}

func (s *Service) UpdateNote(ctx context.Context, actor Principal, noteID string, input UpdateNoteInput) (NoteView, error) {
	if _, err := s.noteForActor(ctx, actor, noteID); err != nil {
		return NoteView{}, err
	}

	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		if err := validateTitle(trimmed); err != nil {
			return NoteView{}, err
		}
		input.Title = &trimmed
	}
	if input.Content != nil {
		if err := validateContent(*input.Content); err != nil {
			return NoteView{}, err
		}
	}
	if input.Type != nil {
		if err := validateNoteType(*input.Type); err != nil {
			return NoteView{}, err
		}
	}
	if input.Status != nil {
		if err := validateNoteStatus(*input.Status); err != nil {
			return NoteView{}, err
		}
	}

	upd := store.NoteUpdate{
		Title:     input.Title,
		Content:   input.Content,
		Type:      input.Type,
		Status:    input.Status,
		UpdatedBy: actor.UserID,
	}
	if input.Tags != nil {
		upd.Tags = *input.Tags
		upd.HasTags = true
	}

	updated, err := s.store.UpdateNote(ctx, noteID, upd)
	if err != nil {
		return NoteView{}, err
	}

	// The note may have entered or left the public listing, or changed
	// content already listed there.
	s.invalidatePublicNotes(ctx)
	return s.noteView(ctx, updated, &actor)
}

func (s *Service) DeleteNote(ctx context.Context, actor Principal, noteID string) error {
	if _, err := s.noteForActor(ctx, actor, noteID); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		return err
	}
	s.invalidatePublicNotes(ctx)
	return nil
}

func (s *Service) PublishNote(ctx context.Context, actor Principal, noteID string) (NoteView, error) {
	return s.setStatus(ctx, actor, noteID, store.NoteStatusPublished)
}

func (s *Service) UnpublishNote(ctx context.Context, actor Principal, noteID string) (NoteView, error) {
	return s.setStatus(ctx, actor, noteID, store.NoteStatusDraft)
}

func (s *Service) setStatus(ctx context.Context, actor Principal, noteID, status string) (NoteView, error) {
	note, err := s.noteForActor(ctx, actor, noteID)
	if err != nil {
		return NoteView{}, err
	}
	updated, err := s.store.SetNoteStatus(ctx, noteID, status)
	if err != nil {
		return NoteView{}, err
	}
	// Status flips only matter to the public listing for PUBLIC notes.
	if note.Type == store.NoteTypePublic {
		s.invalidatePublicNotes(ctx)
	}
	return s.noteView(ctx, updated, &actor)
}

func (s *Service) ListPublicNotes(ctx context.Context, viewer *Principal, filters NoteFilters) ([]NoteView, Pagination, error) {
	filters.Status = filterValue(filters.Status)
	filters.Type = filterValue(filters.Type)
	if filters.Status != "" {
		if err := validateNoteStatus(filters.Status); err != nil {
			return nil, Pagination{}, err
		}
	}
	if filters.Type != "" {
		if err := validateNoteType(filters.Type); err != nil {
			return nil, Pagination{}, err
		}
	}
	page, limit, offset := normalizePage(filters.Page, filters.Limit)

	notes, total, err := s.store.ListPublicNotes(ctx, store.PublicNotesQuery{
		Search:   strings.TrimSpace(filters.Search),
		TagSlugs: filters.Tags,
		Status:   filters.Status,
		Type:     filters.Type,
		SortBy:   filters.SortBy,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	views, err := s.noteViews(ctx, notes, viewer)
	if err != nil {
		return nil, Pagination{}, err
	}
	return views, paginate(page, limit, total), nil
}

// ListWorkspaceNotes searches titles only; the broader title-or-content
// match is reserved for the public listing.
func (s *Service) ListWorkspaceNotes(ctx context.Context, actor Principal, workspaceID string, filters NoteFilters) ([]NoteView, Pagination, error) {
	if _, err := s.workspaceForActor(ctx, actor, workspaceID); err != nil {
		return nil, Pagination{}, err
	}
	filters.Status = filterValue(filters.Status)
	filters.Type = filterValue(filters.Type)
	if filters.Status != "" {
		if err := validateNoteStatus(filters.Status); err != nil {
			return nil, Pagination{}, err
		}
	}
	if filters.Type != "" {
		if err := validateNoteType(filters.Type); err != nil {
			return nil, Pagination{}, err
		}
	}
	page, limit, offset := normalizePage(filters.Page, filters.Limit)

	notes, total, err := s.store.ListWorkspaceNotes(ctx, store.WorkspaceNotesQuery{
		WorkspaceID: workspaceID,
		Search:      strings.TrimSpace(filters.Search),
		Status:      filters.Status,
		Type:        filters.Type,
		Offset:      offset,
		Limit:       limit,
	})
	if err != nil {
		return nil, Pagination{}, err
	}
	views, err := s.noteViews(ctx, notes, &actor)
	if err != nil {
		return nil, Pagination{}, err
	}
	return views, paginate(page, limit, total), nil
}

func (s *Service) ListMyNotes(ctx context.Context, actor Principal, page, limit int) ([]NoteView, Pagination, error) {
	page, limit, offset := normalizePage(page, limit)
	notes, total, err := s.store.ListUserNotes(ctx, actor.UserID, offset, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	views, err := s.noteViews(ctx, notes, &actor)
	if err != nil {
		return nil, Pagination{}, err
	}
	return views, paginate(page, limit, total), nil
}

// noteForActor loads the note and enforces the tenant boundary for
// mutations: only the owning company may change a note, public or not.
func (s *Service) noteForActor(ctx context.Context, actor Principal, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		if isNotFound(err) {
			return store.Note{}, notFound("note not found")
		}
		return store.Note{}, err
	}
	if note.CompanyID != actor.CompanyID {
		return store.Note{}, forbidden("note belongs to another company")
	}
	return note, nil
}
