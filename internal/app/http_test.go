package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"notevault/api/internal/store"
)

func newTestServer(st *fakeStore, cache *fakeCache) *HTTPServer {
	return NewHTTPServer(newTestService(st, cache), "*", zerolog.Nop())
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

func issueTestToken(t *testing.T, principal Principal) string {
	t.Helper()
	svc := newTestService(&fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, CompanyID: principal.CompanyID, Email: principal.Email, Role: principal.Role}, nil
		},
	}, nil)
	token, err := svc.issueToken(store.User{
		ID:        principal.UserID,
		Email:     principal.Email,
		CompanyID: principal.CompanyID,
		Role:      principal.Role,
	}, testConfig().AccessTTL)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	rec, payload := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestEmptyBodyIsFineWhenAllFieldsAreOptional(t *testing.T) {
	st := &fakeStore{
		getWorkspaceFn: func(_ context.Context, workspaceID string) (store.Workspace, error) {
			return store.Workspace{ID: workspaceID, CompanyID: "comp_1", Name: "Engineering", Slug: "engineering"}, nil
		},
	}
	server := newTestServer(st, nil)
	token := issueTestToken(t, insider())

	rec, payload := doRequest(t, server, http.MethodPut, "/api/workspaces/ws_1", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty body, got %d (%v)", rec.Code, payload)
	}

	rec, _ = doRequest(t, server, http.MethodPut, "/api/workspaces/ws_1", token, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/workspaces"},
		{http.MethodPost, "/api/notes"},
		{http.MethodGet, "/api/notes/my-notes"},
		{http.MethodPost, "/api/notes/note_1/vote"},
		{http.MethodGet, "/api/notes/note_1/history"},
	}
	for _, tc := range paths {
		rec, payload := doRequest(t, server, tc.method, tc.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
		if payload["success"] != false || payload["error"] != "UNAUTHORIZED" {
			t.Fatalf("%s %s: unexpected error envelope: %v", tc.method, tc.path, payload)
		}
		if payload["statusCode"] != float64(http.StatusUnauthorized) {
			t.Fatalf("%s %s: envelope statusCode mismatch: %v", tc.method, tc.path, payload)
		}
	}
}

func TestGarbageTokenIsRejected(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/auth/me", "not.a.token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRegisterAndMeFlow(t *testing.T) {
	var registered store.User
	st := &fakeStore{
		createCompanyWithOwnerFn: func(_ context.Context, company store.Company, owner store.User) (store.User, store.Company, error) {
			registered = owner
			return owner, company, nil
		},
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			if userID == registered.ID {
				return registered, nil
			}
			return store.User{}, sql.ErrNoRows
		},
	}
	server := newTestServer(st, nil)

	rec, payload := doRequest(t, server, http.MethodPost, "/api/auth/register", "", `{
		"email": "ada@example.com",
		"password": "longenough",
		"firstName": "Ada",
		"lastName": "Lovelace",
		"companyName": "Analytical Engines"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", rec.Code, payload)
	}
	if payload["success"] != true {
		t.Fatalf("unexpected envelope: %v", payload)
	}
	data := payload["data"].(map[string]any)
	token, _ := data["accessToken"].(string)
	if token == "" {
		t.Fatal("expected an access token in the response")
	}

	rec, payload = doRequest(t, server, http.MethodGet, "/api/auth/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d: %v", rec.Code, payload)
	}
	me := payload["data"].(map[string]any)
	if me["email"] != "ada@example.com" {
		t.Fatalf("unexpected /me payload: %v", me)
	}
}

func TestVoteConflictSurfacesAs409(t *testing.T) {
	st := storeWithNote(publicNote())
	st.getVoteFn = func(_ context.Context, noteID, userID string) (store.Vote, error) {
		return store.Vote{NoteID: noteID, UserID: userID, Type: store.VoteUpvote}, nil
	}
	server := newTestServer(st, nil)
	token := issueTestToken(t, insider())

	rec, payload := doRequest(t, server, http.MethodPost, "/api/notes/note_1/vote", token, `{"type":"downvote"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", rec.Code, payload)
	}
	if payload["error"] != "CONFLICT" {
		t.Fatalf("unexpected error code: %v", payload)
	}
}

func TestPublicNotesListingIsCachedPerViewer(t *testing.T) {
	calls := 0
	st := &fakeStore{
		listPublicNotesFn: func(_ context.Context, _ store.PublicNotesQuery) ([]store.Note, int, error) {
			calls++
			return []store.Note{publicNote()}, 1, nil
		},
	}
	cache := newFakeCache()
	server := newTestServer(st, cache)

	rec, payload := doRequest(t, server, http.MethodGet, "/api/notes/public?page=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["success"] != true {
		t.Fatalf("unexpected envelope: %v", payload)
	}
	if calls != 1 {
		t.Fatalf("expected 1 store call, got %d", calls)
	}

	// Same anonymous request again is served from cache.
	rec, _ = doRequest(t, server, http.MethodGet, "/api/notes/public?page=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("expected cached response, store called %d times", calls)
	}

	// An authenticated viewer gets a separate cache entry.
	token := issueTestToken(t, insider())
	rec, _ = doRequest(t, server, http.MethodGet, "/api/notes/public?page=1", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("expected a fresh store call for the authenticated viewer, got %d", calls)
	}
}

func TestGetNoteToleratesBadTokenOnOptionalAuth(t *testing.T) {
	server := newTestServer(storeWithNote(publicNote()), nil)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/notes/note_1", "garbage-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public note to be readable with a bad token, got %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	rec, payload := doRequest(t, server, http.MethodGet, "/api/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload["error"] != "NOT_FOUND" {
		t.Fatalf("unexpected envelope: %v", payload)
	}
}

func TestCORSAndRequestIDHeaders(t *testing.T) {
	server := newTestServer(&fakeStore{}, nil)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}
