package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notevault/api/internal/auth"
	"notevault/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts[2:])
	case "workspaces":
		s.handleWorkspaces(w, r, parts[2:])
	case "notes":
		s.handleNotes(w, r, parts[2:])
	case "tags":
		s.handleTags(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodPost && parts[0] == "register":
		var input RegisterInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Register(r.Context(), input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, result, "registered")

	case r.Method == http.MethodPost && parts[0] == "login":
		var input LoginInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Login(r.Context(), input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result, "logged in")

	case r.Method == http.MethodPost && parts[0] == "refresh":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result, "token refreshed")

	case r.Method == http.MethodPost && parts[0] == "logout":
		// Tokens are stateless; logout is a client-side discard.
		writeSuccess(w, http.StatusOK, nil, "logged out")

	case r.Method == http.MethodGet && parts[0] == "me":
		principal, ok := s.requirePrincipal(w, r)
		if !ok {
			return
		}
		user, err := s.service.CurrentUser(r.Context(), principal)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, user, "")

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleWorkspaces(w http.ResponseWriter, r *http.Request, parts []string) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		page, limit := pageParams(r)
		views, pagination, err := s.service.ListWorkspaces(r.Context(), principal, page, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	case r.Method == http.MethodPost && len(parts) == 0:
		var input WorkspaceInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.CreateWorkspace(r.Context(), principal, input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, view, "workspace created")

	case r.Method == http.MethodGet && len(parts) == 1:
		view, err := s.service.GetWorkspace(r.Context(), principal, parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "")

	case r.Method == http.MethodPut && len(parts) == 1:
		var input UpdateWorkspaceInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateWorkspace(r.Context(), principal, parts[0], input)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "workspace updated")

	case r.Method == http.MethodDelete && len(parts) == 1:
		if err := s.service.DeleteWorkspace(r.Context(), principal, parts[0]); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "workspace deleted")

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case len(parts) == 0:
		page, limit := pageParams(r)
		views, pagination, err := s.service.ListTags(r.Context(), page, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	case len(parts) == 1 && parts[0] == "popular":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		views, err := s.service.PopularTags(r.Context(), limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, views, "")

	case len(parts) == 1 && parts[0] == "search":
		views, err := s.service.SearchTags(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, views, "")

	case len(parts) == 1:
		view, err := s.service.GetTag(r.Context(), parts[0])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, view, "")

	case len(parts) == 2 && parts[1] == "notes":
		page, limit := pageParams(r)
		views, pagination, err := s.service.ListNotesByTag(r.Context(), s.optionalPrincipal(r), parts[0], page, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writePaginated(w, views, pagination)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// requirePrincipal rejects the request with 401 unless a valid bearer token
// is present.
func (s *HTTPServer) requirePrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Principal{}, false
	}
	principal, err := s.service.PrincipalFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Principal{}, false
	}
	return principal, true
}

// optionalPrincipal resolves the bearer token when present and valid, nil
// otherwise. Optional-auth endpoints never fail on a bad token.
func (s *HTTPServer) optionalPrincipal(r *http.Request) *Principal {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	principal, err := s.service.PrincipalFromToken(token)
	if err != nil {
		return nil
	}
	return &principal
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	payload := map[string]any{
		"success":    true,
		"data":       data,
		"statusCode": status,
	}
	if message != "" {
		payload["message"] = message
	}
	writeJSON(w, status, payload)
}

func writePaginated(w http.ResponseWriter, data any, pagination Pagination) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       data,
		"pagination": pagination,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	payload := map[string]any{
		"success":    false,
		"message":    message,
		"error":      code,
		"statusCode": status,
	}
	if details != nil {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		// An absent body is fine when every input field is optional.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if isNotFound(err) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if store.IsUniqueViolation(err) {
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
