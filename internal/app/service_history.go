package app

import (
	"context"
	"time"

	"notevault/api/internal/store"
)

func (s *Service) ListHistory(ctx context.Context, actor Principal, noteID string, page, limit int) ([]HistoryView, Pagination, error) {
	if _, err := s.noteForActor(ctx, actor, noteID); err != nil {
		return nil, Pagination{}, err
	}
	page, limit, offset := normalizePage(page, limit)
	entries, total, err := s.store.ListHistory(ctx, noteID, offset, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	views := make([]HistoryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, historyView(entry))
	}
	return views, paginate(page, limit, total), nil
}

func (s *Service) GetHistoryEntry(ctx context.Context, actor Principal, noteID, historyID string) (HistoryView, error) {
	entry, err := s.historyForActor(ctx, actor, noteID, historyID)
	if err != nil {
		return HistoryView{}, err
	}
	return historyView(entry), nil
}

// RestoreFromHistory copies a snapshot back onto the note. The store
// snapshots the current state first, so the restore is itself undoable.
func (s *Service) RestoreFromHistory(ctx context.Context, actor Principal, noteID, historyID string) (NoteView, error) {
	if _, err := s.historyForActor(ctx, actor, noteID, historyID); err != nil {
		return NoteView{}, err
	}
	restored, err := s.store.RestoreFromHistory(ctx, noteID, historyID, actor.UserID)
	if err != nil {
		return NoteView{}, err
	}
	// Restored content may already be on the public listing.
	s.invalidatePublicNotes(ctx)
	return s.noteView(ctx, restored, &actor)
}

func (s *Service) DeleteHistoryEntry(ctx context.Context, actor Principal, noteID, historyID string) error {
	if _, err := s.historyForActor(ctx, actor, noteID, historyID); err != nil {
		return err
	}
	return s.store.DeleteHistoryEntry(ctx, historyID)
}

// PruneHistory deletes snapshots older than the configured retention
// window and returns how many were removed. The daily sweep in main calls
// this; it is also safe to invoke ad hoc.
func (s *Service) PruneHistory(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.HistoryRetention)
	deleted, err := s.store.PruneHistory(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned note history")
	}
	return deleted, nil
}

// historyForActor resolves the entry through its note: the entry must exist,
// belong to the addressed note, and the note must belong to the actor's
// company. A mismatched note is NotFound, as if the entry were absent.
func (s *Service) historyForActor(ctx context.Context, actor Principal, noteID, historyID string) (store.HistoryEntry, error) {
	if _, err := s.noteForActor(ctx, actor, noteID); err != nil {
		return store.HistoryEntry{}, err
	}
	entry, err := s.store.GetHistoryEntry(ctx, historyID)
	if err != nil {
		if isNotFound(err) {
			return store.HistoryEntry{}, notFound("history entry not found")
		}
		return store.HistoryEntry{}, err
	}
	if entry.NoteID != noteID {
		return store.HistoryEntry{}, notFound("history entry not found")
	}
	return entry, nil
}
