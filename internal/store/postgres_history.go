package store

import (
	"context"
	"fmt"
	"time"

	"notevault/api/internal/util"
)

const historyColumns = `
	h.id, h.note_id, h.previous_title, h.previous_content, h.updated_by, h.created_at,
	u.id, u.first_name, u.last_name, u.email
`

// ListHistory returns a note's snapshots newest first, with the author of
// each snapshot joined in.
func (s *PostgresStore) ListHistory(ctx context.Context, noteID string, offset, limit int) ([]HistoryEntry, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM note_history h
		JOIN users u ON u.id = h.updated_by
		WHERE h.note_id=$1
		ORDER BY h.created_at DESC
		OFFSET $2 LIMIT $3
	`, noteID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		err := rows.Scan(
			&item.ID, &item.NoteID, &item.PreviousTitle, &item.PreviousContent,
			&item.UpdatedBy, &item.CreatedAt,
			&item.UpdatedByUser.ID, &item.UpdatedByUser.FirstName,
			&item.UpdatedByUser.LastName, &item.UpdatedByUser.Email,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM note_history WHERE note_id=$1`, noteID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) GetHistoryEntry(ctx context.Context, historyID string) (HistoryEntry, error) {
	var item HistoryEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM note_history h
		JOIN users u ON u.id = h.updated_by
		WHERE h.id=$1
	`, historyID).Scan(
		&item.ID, &item.NoteID, &item.PreviousTitle, &item.PreviousContent,
		&item.UpdatedBy, &item.CreatedAt,
		&item.UpdatedByUser.ID, &item.UpdatedByUser.FirstName,
		&item.UpdatedByUser.LastName, &item.UpdatedByUser.Email,
	)
	return item, err
}

// RestoreFromHistory copies a snapshot's title and content back onto the
// note. The note's current state is snapshotted first, in the same
// transaction, so a restore can itself be undone.
func (s *PostgresStore) RestoreFromHistory(ctx context.Context, noteID, historyID, updatedBy string) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin restore tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevTitle, prevContent, entryNoteID string
	err = tx.QueryRowContext(ctx, `
		SELECT previous_title, previous_content, note_id FROM note_history WHERE id=$1
	`, historyID).Scan(&prevTitle, &prevContent, &entryNoteID)
	if err != nil {
		return Note{}, err
	}
	if entryNoteID != noteID {
		return Note{}, fmt.Errorf("history entry %s does not belong to note %s: %w",
			historyID, noteID, ErrHistoryMismatch)
	}

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
	`, util.NewID("hist"), noteID, currentTitle, currentContent, updatedBy)
	if err != nil {
		return Note{}, fmt.Errorf("snapshot before restore: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET title=$2, content=$3, updated_at=NOW() WHERE id=$1
	`, noteID, prevTitle, prevContent)
	if err != nil {
		return Note{}, fmt.Errorf("apply restore: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit restore tx: %w", err)
	}
	return s.GetNote(ctx, noteID)
}

func (s *PostgresStore) DeleteHistoryEntry(ctx context.Context, historyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM note_history WHERE id=$1`, historyID)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	return nil
}

// PruneHistory removes snapshots created before the cutoff and reports how
// many rows were deleted.
func (s *PostgresStore) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM note_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history rows affected: %w", err)
	}
	return n, nil
}
