package app

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, parts []string) {
	// Optional-auth reads come first; everything after requires a principal.
	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "public":
		s.handlePublicNotes(w, r)
		return
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] != "my-notes":
		view, err := s.service.GetNote(r.Context(), s.optionalPrincipal(r), parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "")
		return
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "votes":
		view, err := s.service.NoteVotes(r.Context(), s.optionalPrincipal(r), parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "")
		return
	}

	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "my-notes":
		page, limit := pageParams(r)
		views, pagination, err := s.service.ListMyNotes(r.Context(), principal, page, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "workspace":
		views, pagination, err := s.service.ListWorkspaceNotes(r.Context(), principal, parts[1], noteFilters(r))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	case r.Method == http.MethodPost && len(parts) == 0:
		var input CreateNoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.CreateNote(r.Context(), principal, input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, view, "note created")

	case r.Method == http.MethodPut && len(parts) == 1:
		var input UpdateNoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateNote(r.Context(), principal, parts[0], input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "note updated")

	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.DeleteNote(r.Context(), principal, parts[0]); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "note deleted")

	case r.Method == http.MethodPatch && len(parts) == 2 && parts[1] == "publish":
		view, err := s.service.PublishNote(r.Context(), principal, parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "note published")

	case r.Method == http.MethodPatch && len(parts) == 2 && parts[1] == "unpublish":
		view, err := s.service.UnpublishNote(r.Context(), principal, parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "note unpublished")

	case len(parts) == 2 && parts[1] == "vote":
		s.handleVote(w, r, principal, parts[0])

	case len(parts) >= 2 && parts[1] == "history":
		s.handleHistory(w, r, principal, parts[0], parts[2:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handlePublicNotes serves the world-readable listing through the cache:
// responses are keyed per viewer and full request URI so authenticated
// viewers never see another user's userVote fields.
func (s *HTTPServer) handlePublicNotes(w http.ResponseWriter, r *http.Request) {
	viewer := s.optionalPrincipal(r)
	viewerKey := "anonymous"
	if viewer != nil {
		viewerKey = viewer.UserID
	}
	cacheKey := "public-notes:" + viewerKey + ":" + r.URL.RequestURI()

	if cached, ok := s.service.CachedPublicListing(r.Context(), cacheKey); ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(cached))
		return
	}

	views, pagination, err := s.service.ListPublicNotes(r.Context(), viewer, noteFilters(r))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"success":    true,
		"data":       views,
		"pagination": pagination,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	s.service.StorePublicListing(r.Context(), cacheKey, string(payload))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *HTTPServer) handleVote(w http.ResponseWriter, r *http.Request, principal Principal, noteID string) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var input VoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var (
			view VotesView
			err  error
		)
		if r.Method == http.MethodPost {
			view, err = s.service.CastVote(r.Context(), principal, noteID, input)
		} else {
			view, err = s.service.ChangeVote(r.Context(), principal, noteID, input)
		}
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "vote recorded")

	case http.MethodDelete:
		view, err := s.service.RemoveVote(r.Context(), principal, noteID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "vote removed")

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, principal Principal, noteID string, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		page, limit := pageParams(r)
		views, pagination, err := s.service.ListHistory(r.Context(), principal, noteID, page, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	case r.Method == http.MethodGet && len(parts) == 1:
		view, err := s.service.GetHistoryEntry(r.Context(), principal, noteID, parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "")

	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.DeleteHistoryEntry(r.Context(), principal, noteID, parts[0]); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "history entry deleted")

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "restore":
		view, err := s.service.RestoreFromHistory(r.Context(), principal, noteID, parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "note restored")

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func noteFilters(r *http.Request) NoteFilters {
	query := r.URL.Query()
	page, limit := pageParams(r)
	filters := NoteFilters{
		Search: query.Get("search"),
		Status: query.Get("status"),
		Type:   query.Get("type"),
		SortBy: query.Get("sortBy"),
		Page:   page,
		Limit:  limit,
	}
	if raw := strings.TrimSpace(query.Get("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}
	return filters
}
