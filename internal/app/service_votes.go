package app

import (
	"context"

	"notevault/api/internal/store"
)

type VoteInput struct {
	Type string `json:"type"`
}

// CastVote records a first vote on a public published note. The vote state
// machine per (note, user) is strict: casting over an existing vote is a
// Conflict, clients change or remove instead.
func (s *Service) CastVote(ctx context.Context, actor Principal, noteID string, input VoteInput) (VotesView, error) {
	voteType, ok := storeVoteType(input.Type)
	if !ok {
		return VotesView{}, validationErr("type must be upvote or downvote", nil)
	}
	if _, err := s.votableNote(ctx, noteID); err != nil {
		return VotesView{}, err
	}

	if _, err := s.store.GetVote(ctx, noteID, actor.UserID); err == nil {
		return VotesView{}, conflictErr("you have already voted on this note")
	} else if !isNotFound(err) {
		return VotesView{}, err
	}

	_, err := s.store.CastVote(ctx, store.Vote{NoteID: noteID, UserID: actor.UserID, Type: voteType})
	if err != nil {
		// A concurrent cast won the (note_id, user_id) race.
		if store.IsUniqueViolation(err) {
			return VotesView{}, conflictErr("you have already voted on this note")
		}
		return VotesView{}, err
	}
	return s.NoteVotes(ctx, &actor, noteID)
}

// ChangeVote and RemoveVote require only an existing vote. The note's state
// does not matter here: a voter can always undo or flip their vote, even
// after the note is unpublished or made private.
func (s *Service) ChangeVote(ctx context.Context, actor Principal, noteID string, input VoteInput) (VotesView, error) {
	voteType, ok := storeVoteType(input.Type)
	if !ok {
		return VotesView{}, validationErr("type must be upvote or downvote", nil)
	}
	if _, err := s.store.ChangeVote(ctx, noteID, actor.UserID, voteType); err != nil {
		if isNotFound(err) {
			return VotesView{}, notFound("no vote to change")
		}
		return VotesView{}, err
	}
	return s.NoteVotes(ctx, &actor, noteID)
}

func (s *Service) RemoveVote(ctx context.Context, actor Principal, noteID string) (VotesView, error) {
	if err := s.store.RemoveVote(ctx, noteID, actor.UserID); err != nil {
		if isNotFound(err) {
			return VotesView{}, notFound("no vote to remove")
		}
		return VotesView{}, err
	}
	return s.NoteVotes(ctx, &actor, noteID)
}

// NoteVotes recounts the vote ledger for one note. The counts are not
// access controlled beyond the note existing; anonymous viewers get a nil
// userVote.
func (s *Service) NoteVotes(ctx context.Context, viewer *Principal, noteID string) (VotesView, error) {
	if _, err := s.store.GetNote(ctx, noteID); err != nil {
		if isNotFound(err) {
			return VotesView{}, notFound("note not found")
		}
		return VotesView{}, err
	}
	summary, err := s.store.NoteVoteSummary(ctx, noteID, viewerID(viewer))
	if err != nil {
		return VotesView{}, err
	}
	return votesView(summary), nil
}

// votableNote requires the note to exist and to be publicly visible. Casting
// is a public interaction: drafts and private notes take no new votes, not
// even from their own tenant.
func (s *Service) votableNote(ctx context.Context, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		if isNotFound(err) {
			return store.Note{}, notFound("note not found")
		}
		return store.Note{}, err
	}
	if !noteIsWorldReadable(note) {
		return store.Note{}, forbidden("only public published notes accept votes")
	}
	return note, nil
}
