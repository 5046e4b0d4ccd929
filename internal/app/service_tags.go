package app

import (
	"context"
	"strings"
)

const (
	popularTagsMax   = 50
	searchTagsLimit  = 20
	popularTagsLimit = 10
)

func (s *Service) ListTags(ctx context.Context, page, limit int) ([]TagCountView, Pagination, error) {
	page, limit, offset := normalizePage(page, limit)
	tags, total, err := s.store.ListTags(ctx, offset, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	views := make([]TagCountView, 0, len(tags))
	for _, t := range tags {
		views = append(views, TagCountView{ID: t.ID, Name: t.Name, Slug: t.Slug, NoteCount: t.NoteCount})
	}
	return views, paginate(page, limit, total), nil
}

func (s *Service) GetTag(ctx context.Context, tagSlug string) (TagCountView, error) {
	tag, err := s.store.GetTagBySlug(ctx, tagSlug)
	if err != nil {
		if isNotFound(err) {
			return TagCountView{}, notFound("tag not found")
		}
		return TagCountView{}, err
	}
	return TagCountView{ID: tag.ID, Name: tag.Name, Slug: tag.Slug, NoteCount: tag.NoteCount}, nil
}

// ListNotesByTag lists the public published notes carrying the tag.
func (s *Service) ListNotesByTag(ctx context.Context, viewer *Principal, tagSlug string, page, limit int) ([]NoteView, Pagination, error) {
	tag, err := s.store.GetTagBySlug(ctx, tagSlug)
	if err != nil {
		if isNotFound(err) {
			return nil, Pagination{}, notFound("tag not found")
		}
		return nil, Pagination{}, err
	}
	page, limit, offset := normalizePage(page, limit)
	notes, total, err := s.store.ListNotesByTag(ctx, tag.ID, offset, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	views, err := s.noteViews(ctx, notes, viewer)
	if err != nil {
		return nil, Pagination{}, err
	}
	return views, paginate(page, limit, total), nil
}

func (s *Service) PopularTags(ctx context.Context, limit int) ([]TagCountView, error) {
	if limit < 1 {
		limit = popularTagsLimit
	}
	if limit > popularTagsMax {
		limit = popularTagsMax
	}
	tags, err := s.store.PopularTags(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]TagCountView, 0, len(tags))
	for _, t := range tags {
		views = append(views, TagCountView{ID: t.ID, Name: t.Name, Slug: t.Slug, NoteCount: t.NoteCount})
	}
	return views, nil
}

func (s *Service) SearchTags(ctx context.Context, query string) ([]TagCountView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationErr("q is required", nil)
	}
	tags, err := s.store.SearchTags(ctx, query, searchTagsLimit)
	if err != nil {
		return nil, err
	}
	views := make([]TagCountView, 0, len(tags))
	for _, t := range tags {
		views = append(views, TagCountView{ID: t.ID, Name: t.Name, Slug: t.Slug, NoteCount: t.NoteCount})
	}
	return views, nil
}
