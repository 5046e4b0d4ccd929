package store

import (
	"context"
	"fmt"
	"strings"
)

func (s *PostgresStore) GetVote(ctx context.Context, noteID, userID string) (Vote, error) {
	var item Vote
	err := s.db.QueryRowContext(ctx, `
		SELECT note_id, user_id, type, created_at, updated_at
		FROM votes WHERE note_id=$1 AND user_id=$2
	`, noteID, userID).Scan(&item.NoteID, &item.UserID, &item.Type, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// CastVote inserts a new vote and bumps the matching counter in the same
// transaction. The (note_id, user_id) primary key is the concurrency
// boundary: a second concurrent cast surfaces as a unique violation, which
// callers map to a conflict.
func (s *PostgresStore) CastVote(ctx context.Context, vote Vote) (Vote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Vote{}, fmt.Errorf("begin cast vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO votes (note_id, user_id, type)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, vote.NoteID, vote.UserID, vote.Type).Scan(&vote.CreatedAt, &vote.UpdatedAt)
	if err != nil {
		return Vote{}, err
	}

	counter := "upvotes"
	if vote.Type == VoteDownvote {
		counter = "downvotes"
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE notes SET `+counter+` = `+counter+` + 1, updated_at=NOW() WHERE id=$1`,
		vote.NoteID)
	if err != nil {
		return Vote{}, fmt.Errorf("increment %s: %w", counter, err)
	}

	if err := tx.Commit(); err != nil {
		return Vote{}, fmt.Errorf("commit cast vote tx: %w", err)
	}
	return vote, nil
}

// ChangeVote rewrites the vote row and applies the counter delta as a
// decrement of the old type plus an increment of the new, even when the two
// types are equal. The net effect for a same-type change is zero, so the
// counter invariant holds either way.
func (s *PostgresStore) ChangeVote(ctx context.Context, noteID, userID, newType string) (Vote, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Vote{}, fmt.Errorf("begin change vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var item Vote
	err = tx.QueryRowContext(ctx, `
		SELECT note_id, user_id, type, created_at, updated_at
		FROM votes WHERE note_id=$1 AND user_id=$2 FOR UPDATE
	`, noteID, userID).Scan(&item.NoteID, &item.UserID, &item.Type, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Vote{}, err
	}
	oldType := item.Type

	err = tx.QueryRowContext(ctx, `
		UPDATE votes SET type=$3, updated_at=NOW()
		WHERE note_id=$1 AND user_id=$2
		RETURNING updated_at
	`, noteID, userID, newType).Scan(&item.UpdatedAt)
	if err != nil {
		return Vote{}, fmt.Errorf("update vote: %w", err)
	}
	item.Type = newType

	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET
			upvotes = upvotes
				+ CASE WHEN $2 = 'UPVOTE' THEN 1 ELSE 0 END
				- CASE WHEN $3 = 'UPVOTE' THEN 1 ELSE 0 END,
			downvotes = downvotes
				+ CASE WHEN $2 = 'DOWNVOTE' THEN 1 ELSE 0 END
				- CASE WHEN $3 = 'DOWNVOTE' THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id=$1
	`, noteID, newType, oldType)
	if err != nil {
		return Vote{}, fmt.Errorf("swap vote counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Vote{}, fmt.Errorf("commit change vote tx: %w", err)
	}
	return item, nil
}

// RemoveVote deletes the user's vote and decrements the matching counter in
// the same transaction.
func (s *PostgresStore) RemoveVote(ctx context.Context, noteID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var voteType string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM votes WHERE note_id=$1 AND user_id=$2 RETURNING type
	`, noteID, userID).Scan(&voteType)
	if err != nil {
		return err
	}

	counter := "upvotes"
	if voteType == VoteDownvote {
		counter = "downvotes"
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE notes SET `+counter+` = `+counter+` - 1, updated_at=NOW() WHERE id=$1`,
		noteID)
	if err != nil {
		return fmt.Errorf("decrement %s: %w", counter, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove vote tx: %w", err)
	}
	return nil
}

// NoteVoteSummary recounts the vote ledger for one note. Read paths report
// these counts rather than the denormalized columns.
func (s *PostgresStore) NoteVoteSummary(ctx context.Context, noteID, userID string) (VoteSummary, error) {
	var summary VoteSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'UPVOTE'),
			COUNT(*) FILTER (WHERE type = 'DOWNVOTE')
		FROM votes WHERE note_id=$1
	`, noteID).Scan(&summary.Upvotes, &summary.Downvotes)
	if err != nil {
		return VoteSummary{}, fmt.Errorf("count votes: %w", err)
	}

	if userID != "" {
		var voteType string
		err := s.db.QueryRowContext(ctx,
			`SELECT type FROM votes WHERE note_id=$1 AND user_id=$2`,
			noteID, userID).Scan(&voteType)
		switch {
		case err == nil:
			summary.UserVote = &voteType
		case isNoRows(err):
			// no vote recorded
		default:
			return VoteSummary{}, fmt.Errorf("load user vote: %w", err)
		}
	}
	return summary, nil
}

// VoteSummaries is the batch form of NoteVoteSummary for listing paths.
// Notes with no votes are absent from the map; callers treat that as zero.
func (s *PostgresStore) VoteSummaries(ctx context.Context, noteIDs []string, userID string) (map[string]VoteSummary, error) {
	result := make(map[string]VoteSummary)
	if len(noteIDs) == 0 {
		return result, nil
	}
	idList := strings.Join(noteIDs, ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id,
			COUNT(*) FILTER (WHERE type = 'UPVOTE'),
			COUNT(*) FILTER (WHERE type = 'DOWNVOTE')
		FROM votes
		WHERE note_id = ANY(string_to_array($1, ','))
		GROUP BY note_id
	`, idList)
	if err != nil {
		return nil, fmt.Errorf("count votes batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID string
		var summary VoteSummary
		if err := rows.Scan(&noteID, &summary.Upvotes, &summary.Downvotes); err != nil {
			return nil, fmt.Errorf("scan vote counts: %w", err)
		}
		result[noteID] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}

	if userID != "" {
		userRows, err := s.db.QueryContext(ctx, `
			SELECT note_id, type FROM votes
			WHERE user_id = $2 AND note_id = ANY(string_to_array($1, ','))
		`, idList, userID)
		if err != nil {
			return nil, fmt.Errorf("load user votes batch: %w", err)
		}
		defer userRows.Close()

		for userRows.Next() {
			var noteID, voteType string
			if err := userRows.Scan(&noteID, &voteType); err != nil {
				return nil, fmt.Errorf("scan user vote: %w", err)
			}
			summary := result[noteID]
			summary.UserVote = &voteType
			result[noteID] = summary
		}
		if err := userRows.Err(); err != nil {
			return nil, fmt.Errorf("iterate user votes: %w", err)
		}
	}
	return result, nil
}
