package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"notevault/api/internal/slug"
	"notevault/api/internal/util"
)

const noteColumns = `
	n.id, n.workspace_id, w.company_id, n.created_by, n.title, n.content,
	n.type, n.status, n.upvotes, n.downvotes, n.created_at, n.updated_at
`

const noteFrom = `FROM notes n JOIN workspaces w ON w.id = n.workspace_id`

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var item Note
	err := row.Scan(
		&item.ID,
		&item.WorkspaceID,
		&item.CompanyID,
		&item.CreatedBy,
		&item.Title,
		&item.Content,
		&item.Type,
		&item.Status,
		&item.Upvotes,
		&item.Downvotes,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// CreateNote persists the note and its tag links in one transaction. Tags
// are upserted by slug: an existing tag is reused and its name is never
// overwritten, so the first writer of a slug owns the display name.
func (s *PostgresStore) CreateNote(ctx context.Context, note Note, tagNames []string) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin create note tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, workspace_id, created_by, title, content, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, note.ID, note.WorkspaceID, note.CreatedBy, note.Title, note.Content, note.Type, note.Status)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}

	if err := linkTags(ctx, tx, note.ID, tagNames); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit create note tx: %w", err)
	}
	return s.GetNote(ctx, note.ID)
}

// UpdateNote snapshots the note's current title/content into note_history
// and then applies the partial update, all in one transaction. The snapshot
// is unconditional: every update call leaves a history entry, whether or not
// title/content are part of the change.
func (s *PostgresStore) UpdateNote(ctx context.Context, noteID string, upd NoteUpdate) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin update note tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentTitle, currentContent string
	err = tx.QueryRowContext(ctx, `
		SELECT title, content FROM notes WHERE id=$1 FOR UPDATE
	`, noteID).Scan(&currentTitle, &currentContent)
	if err != nil {
		return Note{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO note_history (id, note_id, previous_title, previous_content, updated_by)
		VALUES ($1, $2, $3, $4, $5)
	`, util.NewID("hist"), noteID, currentTitle, currentContent, upd.UpdatedBy)
	if err != nil {
		return Note{}, fmt.Errorf("insert history snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notes
		SET title=COALESCE($2, title),
			content=COALESCE($3, content),
			type=COALESCE($4, type),
			status=COALESCE($5, status),
			updated_at=NOW()
		WHERE id=$1
	`, noteID, upd.Title, upd.Content, upd.Type, upd.Status)
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}

	if upd.HasTags {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id=$1`, noteID); err != nil {
			return Note{}, fmt.Errorf("clear note tags: %w", err)
		}
		if err := linkTags(ctx, tx, noteID, upd.Tags); err != nil {
			return Note{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit update note tx: %w", err)
	}
	return s.GetNote(ctx, noteID)
}

func linkTags(ctx context.Context, tx *sql.Tx, noteID string, tagNames []string) error {
	for _, name := range tagNames {
		tagID, err := upsertTag(ctx, tx, name)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO note_tags (note_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (note_id, tag_id) DO NOTHING
		`, noteID, tagID)
		if err != nil {
			return fmt.Errorf("link tag %s: %w", tagID, err)
		}
	}
	return nil
}

// upsertTag reuses an existing tag when the slug is already taken; the
// DO UPDATE is a no-op that only makes RETURNING yield the existing row.
func upsertTag(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var tagID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO tags (id, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET slug = tags.slug
		RETURNING id
	`, util.NewID("tag"), name, slug.Make(name)).Scan(&tagID)
	if err != nil {
		return "", fmt.Errorf("upsert tag %q: %w", name, err)
	}
	return tagID, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+noteFrom+` WHERE n.id=$1`, noteID)
	return scanNote(row)
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetNoteStatus(ctx context.Context, noteID, status string) (Note, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET status=$2, updated_at=NOW() WHERE id=$1
	`, noteID, status)
	if err != nil {
		return Note{}, fmt.Errorf("set note status: %w", err)
	}
	return s.GetNote(ctx, noteID)
}

const publicNotesWhere = `
	WHERE n.status = 'PUBLISHED' AND n.type = 'PUBLIC'
	  AND ($1 = '' OR n.status = $1)
	  AND ($2 = '' OR n.type = $2)
	  AND ($3 = '' OR n.title ILIKE '%' || $3 || '%' OR n.content ILIKE '%' || $3 || '%')
	  AND ($4 = '' OR EXISTS (
			SELECT 1 FROM note_tags nt
			JOIN tags t ON t.id = nt.tag_id
			WHERE nt.note_id = n.id AND t.slug = ANY(string_to_array($4, ','))
	  ))
`

// ListPublicNotes returns the world-readable listing. The vote sorts order
// by the denormalized counters; that is what they exist for.
func (s *PostgresStore) ListPublicNotes(ctx context.Context, q PublicNotesQuery) ([]Note, int, error) {
	orderBy := "n.created_at DESC"
	switch q.SortBy {
	case "oldest":
		orderBy = "n.created_at ASC"
	case "most_upvoted":
		orderBy = "n.upvotes DESC"
	case "most_downvoted":
		orderBy = "n.downvotes DESC"
	}

	tagList := strings.Join(q.TagSlugs, ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+noteFrom+publicNotesWhere+` ORDER BY `+orderBy+` OFFSET $5 LIMIT $6`,
		q.Status, q.Type, q.Search, tagList, q.Offset, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list public notes: %w", err)
	}
	items, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) `+noteFrom+publicNotesWhere,
		q.Status, q.Type, q.Search, tagList).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count public notes: %w", err)
	}
	return items, total, nil
}

const workspaceNotesWhere = `
	WHERE n.workspace_id = $1
	  AND ($2 = '' OR n.title ILIKE '%' || $2 || '%')
	  AND ($3 = '' OR n.status = $3)
	  AND ($4 = '' OR n.type = $4)
`

func (s *PostgresStore) ListWorkspaceNotes(ctx context.Context, q WorkspaceNotesQuery) ([]Note, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+noteFrom+workspaceNotesWhere+` ORDER BY n.created_at DESC OFFSET $5 LIMIT $6`,
		q.WorkspaceID, q.Search, q.Status, q.Type, q.Offset, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list workspace notes: %w", err)
	}
	items, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) `+noteFrom+workspaceNotesWhere,
		q.WorkspaceID, q.Search, q.Status, q.Type).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count workspace notes: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) ListUserNotes(ctx context.Context, userID string, offset, limit int) ([]Note, int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+noteFrom+` WHERE n.created_by=$1 ORDER BY n.created_at DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list user notes: %w", err)
	}
	items, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE created_by=$1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user notes: %w", err)
	}
	return items, total, nil
}

// ListNotesByTag returns public published notes carrying the tag.
func (s *PostgresStore) ListNotesByTag(ctx context.Context, tagID string, offset, limit int) ([]Note, int, error) {
	const byTagWhere = `
		JOIN note_tags nt ON nt.note_id = n.id
		WHERE nt.tag_id = $1 AND n.status = 'PUBLISHED' AND n.type = 'PUBLIC'
	`
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+noteFrom+byTagWhere+` ORDER BY n.created_at DESC OFFSET $2 LIMIT $3`,
		tagID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes by tag: %w", err)
	}
	items, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) `+noteFrom+byTagWhere, tagID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count notes by tag: %w", err)
	}
	return items, total, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()
	items := make([]Note, 0)
	for rows.Next() {
		item, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// NoteTags returns the tags attached to one note, name ascending.
func (s *PostgresStore) NoteTags(ctx context.Context, noteID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id=$1
		ORDER BY t.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("note tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note tags: %w", err)
	}
	return items, nil
}

// TagsForNotes returns the tags for a batch of notes in one query, keyed by
// note id. Listing paths use it to avoid a query per row.
func (s *PostgresStore) TagsForNotes(ctx context.Context, noteIDs []string) (map[string][]Tag, error) {
	result := make(map[string][]Tag)
	if len(noteIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT nt.note_id, t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ANY(string_to_array($1, ','))
		ORDER BY t.name ASC
	`, strings.Join(noteIDs, ","))
	if err != nil {
		return nil, fmt.Errorf("tags for notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID string
		var item Tag
		if err := rows.Scan(&noteID, &item.ID, &item.Name, &item.Slug, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tag for note: %w", err)
		}
		result[noteID] = append(result[noteID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags for notes: %w", err)
	}
	return result, nil
}
