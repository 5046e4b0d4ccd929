package app

import (
	"context"
	"strings"

	"notevault/api/internal/slug"
	"notevault/api/internal/store"
	"notevault/api/internal/util"
)

type WorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateWorkspaceInput distinguishes an omitted description from an explicit
// empty one.
type UpdateWorkspaceInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (s *Service) CreateWorkspace(ctx context.Context, actor Principal, input WorkspaceInput) (WorkspaceView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return WorkspaceView{}, validationErr("name is required", nil)
	}

	// Slugs are unique per company; collisions get a numeric suffix.
	wsSlug, err := slug.Unique(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
		return s.store.WorkspaceSlugTaken(ctx, actor.CompanyID, candidate)
	})
	if err != nil {
		return WorkspaceView{}, err
	}

	created, err := s.store.InsertWorkspace(ctx, store.Workspace{
		ID:          util.NewID("ws"),
		CompanyID:   actor.CompanyID,
		Name:        name,
		Slug:        wsSlug,
		Description: strings.TrimSpace(input.Description),
	})
	if err != nil {
		return WorkspaceView{}, err
	}
	return workspaceView(created), nil
}

func (s *Service) ListWorkspaces(ctx context.Context, actor Principal, page, limit int) ([]WorkspaceView, Pagination, error) {
	page, limit, offset := normalizePage(page, limit)
	items, total, err := s.store.ListWorkspaces(ctx, actor.CompanyID, offset, limit)
	if err != nil {
		return nil, Pagination{}, err
	}
	views := make([]WorkspaceView, 0, len(items))
	for _, ws := range items {
		views = append(views, workspaceView(ws))
	}
	return views, paginate(page, limit, total), nil
}

func (s *Service) GetWorkspace(ctx context.Context, actor Principal, workspaceID string) (WorkspaceView, error) {
	ws, err := s.workspaceForActor(ctx, actor, workspaceID)
	if err != nil {
		return WorkspaceView{}, err
	}
	return workspaceView(ws), nil
}

// UpdateWorkspace applies a partial update. A rename regenerates the slug
// under the same company scoped collision policy as creation; an explicit
// empty description clears the stored one.
func (s *Service) UpdateWorkspace(ctx context.Context, actor Principal, workspaceID string, input UpdateWorkspaceInput) (WorkspaceView, error) {
	current, err := s.workspaceForActor(ctx, actor, workspaceID)
	if err != nil {
		return WorkspaceView{}, err
	}

	name := current.Name
	wsSlug := current.Slug
	if trimmed := strings.TrimSpace(input.Name); trimmed != "" {
		name = trimmed
		wsSlug, err = slug.Unique(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
			return s.store.WorkspaceSlugTaken(ctx, actor.CompanyID, candidate)
		})
		if err != nil {
			return WorkspaceView{}, err
		}
	}

	description := current.Description
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}

	updated, err := s.store.UpdateWorkspace(ctx, workspaceID, name, wsSlug, description)
	if err != nil {
		return WorkspaceView{}, err
	}
	return workspaceView(updated), nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, actor Principal, workspaceID string) error {
	if _, err := s.workspaceForActor(ctx, actor, workspaceID); err != nil {
		return err
	}
	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	// Cascaded notes may have been publicly visible.
	s.invalidatePublicNotes(ctx)
	return nil
}

// workspaceForActor loads the workspace and enforces the tenant boundary:
// absent means NotFound, another company's workspace means Forbidden.
func (s *Service) workspaceForActor(ctx context.Context, actor Principal, workspaceID string) (store.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if isNotFound(err) {
			return store.Workspace{}, notFound("workspace not found")
		}
		return store.Workspace{}, err
	}
	if ws.CompanyID != actor.CompanyID {
		return store.Workspace{}, forbidden("workspace belongs to another company")
	}
	return ws, nil
}
