package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrHistoryMismatch is returned when a history entry is addressed through
// a note it does not belong to.
var ErrHistoryMismatch = errors.New("history entry does not belong to note")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505). The service maps these to Conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// CreateCompanyWithOwner registers a tenant: the company row and its OWNER
// user commit together or not at all.
func (s *PostgresStore) CreateCompanyWithOwner(ctx context.Context, company Company, owner User) (User, Company, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, Company{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO companies (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at, updated_at
	`, company.ID, company.Name).Scan(&company.ID, &company.Name, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return User{}, Company{}, fmt.Errorf("insert company: %w", err)
	}

	owner.CompanyID = company.ID
	owner.Role = RoleOwner
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, owner.ID, owner.Email, owner.PasswordHash, owner.FirstName, owner.LastName, owner.Role, owner.CompanyID).
		Scan(&owner.CreatedAt, &owner.UpdatedAt)
	if err != nil {
		return User{}, Company{}, fmt.Errorf("insert owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, Company{}, fmt.Errorf("commit register tx: %w", err)
	}
	return owner, company, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role, company_id, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role, &user.CompanyID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, role, company_id, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role, &user.CompanyID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) WorkspaceSlugTaken(ctx context.Context, companyID, slug string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM workspaces WHERE company_id=$1 AND slug=$2)
	`, companyID, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check workspace slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, workspace Workspace) (Workspace, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, company_id, name, slug, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, workspace.ID, workspace.CompanyID, workspace.Name, workspace.Slug, workspace.Description).
		Scan(&workspace.CreatedAt, &workspace.UpdatedAt)
	if err != nil {
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	return workspace, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.company_id, w.name, w.slug, w.description,
			(SELECT COUNT(*) FROM notes n WHERE n.workspace_id = w.id),
			w.created_at, w.updated_at
		FROM workspaces w
		WHERE w.id=$1
	`, workspaceID).Scan(&item.ID, &item.CompanyID, &item.Name, &item.Slug, &item.Description, &item.NoteCount, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListWorkspaces(ctx context.Context, companyID string, offset, limit int) ([]Workspace, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.company_id, w.name, w.slug, w.description,
			(SELECT COUNT(*) FROM notes n WHERE n.workspace_id = w.id),
			w.created_at, w.updated_at
		FROM workspaces w
		WHERE w.company_id=$1
		ORDER BY w.created_at DESC
		OFFSET $2 LIMIT $3
	`, companyID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		var item Workspace
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.Name, &item.Slug, &item.Description, &item.NoteCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate workspaces: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE company_id=$1`, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workspaces: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, workspaceID, name, slug, description string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		UPDATE workspaces
		SET name=$2, slug=$3, description=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING id, company_id, name, slug, description, created_at, updated_at
	`, workspaceID, name, slug, description).
		Scan(&item.ID, &item.CompanyID, &item.Name, &item.Slug, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}
