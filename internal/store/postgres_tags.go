package store

import (
	"context"
	"fmt"
)

const tagWithCount = `
	SELECT t.id, t.name, t.slug, t.created_at, t.updated_at,
		(SELECT COUNT(*) FROM note_tags nt WHERE nt.tag_id = t.id) AS note_count
	FROM tags t
`

func scanTagWithCount(row interface{ Scan(...any) error }) (Tag, error) {
	var item Tag
	err := row.Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt, &item.UpdatedAt, &item.NoteCount)
	return item, err
}

func (s *PostgresStore) ListTags(ctx context.Context, offset, limit int) ([]Tag, int, error) {
	rows, err := s.db.QueryContext(ctx,
		tagWithCount+` ORDER BY t.name ASC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		item, err := scanTagWithCount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tags: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tags: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) GetTagBySlug(ctx context.Context, tagSlug string) (Tag, error) {
	row := s.db.QueryRowContext(ctx, tagWithCount+` WHERE t.slug=$1`, tagSlug)
	return scanTagWithCount(row)
}

// PopularTags returns the most-used tags, usage descending.
func (s *PostgresStore) PopularTags(ctx context.Context, limit int) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		tagWithCount+` ORDER BY note_count DESC, t.name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("popular tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		item, err := scanTagWithCount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan popular tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate popular tags: %w", err)
	}
	return items, nil
}

// SearchTags matches tag names case-insensitively, most used first.
func (s *PostgresStore) SearchTags(ctx context.Context, query string, limit int) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		tagWithCount+` WHERE t.name ILIKE '%' || $1 || '%' ORDER BY note_count DESC, t.name ASC LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		item, err := scanTagWithCount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag match: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag matches: %w", err)
	}
	return items, nil
}
