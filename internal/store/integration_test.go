package store

import (
	"context"
	"os"
	"testing"

	"notevault/api/internal/util"
)

// getTestDatabaseURL returns the database URL for integration tests.
// It checks the TEST_DATABASE_URL environment variable first,
// then falls back to a default local development URL.
func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := getenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "notevault")
	pass := getenv("POSTGRES_PASSWORD", "notevault")
	dbname := getenv("POSTGRES_DB", "notevault_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// openTestStore connects to the test database, applies migrations and
// truncates all domain tables so each test starts clean.
func openTestStore(t *testing.T, ctx context.Context) *PostgresStore {
	t.Helper()

	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		TRUNCATE votes, note_history, note_tags, tags, notes, workspaces, users, companies CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewPostgresStore(db)
}

// seedNote creates a company, an owner, a workspace and one note, and
// returns the note and the owner's user id.
func seedNote(t *testing.T, ctx context.Context, s *PostgresStore) (Note, string) {
	t.Helper()

	company := Company{ID: util.NewID("comp"), Name: "Acme"}
	owner := User{
		ID:           util.NewID("user"),
		CompanyID:    company.ID,
		Email:        util.NewID("") + "@example.com",
		PasswordHash: "not-a-real-hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         RoleOwner,
	}
	if _, _, err := s.CreateCompanyWithOwner(ctx, company, owner); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	ws := Workspace{
		ID:        util.NewID("ws"),
		CompanyID: company.ID,
		Name:      "Engineering",
		Slug:      "engineering-" + util.NewID(""),
	}
	if _, err := s.InsertWorkspace(ctx, ws); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}

	note := Note{
		ID:          util.NewID("note"),
		WorkspaceID: ws.ID,
		CreatedBy:   owner.ID,
		Title:       "Release checklist",
		Content:     "Cut the branch first.",
		Type:        NoteTypePublic,
		Status:      NoteStatusPublished,
	}
	created, err := s.CreateNote(ctx, note, nil)
	if err != nil {
		t.Fatalf("seed note: %v", err)
	}
	return created, owner.ID
}

// seedUser adds another member to the note's company.
func seedUser(t *testing.T, ctx context.Context, s *PostgresStore, companyID string) string {
	t.Helper()

	id := util.NewID("user")
	_, err := s.DB().ExecContext(ctx, `
		INSERT INTO users (id, company_id, email, password_hash, first_name, last_name, role)
		VALUES ($1, $2, $3, 'not-a-real-hash', 'Grace', 'Hopper', 'MEMBER')
	`, id, companyID, util.NewID("")+"@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}
