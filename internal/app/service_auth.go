package app

import (
	"context"
	"strings"

	"notevault/api/internal/auth"
	"notevault/api/internal/store"
	"notevault/api/internal/util"
)

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// Register creates a company and its OWNER user in one transaction and
// returns a signed-in session for the owner.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, validationErr("a valid email is required", nil)
	}
	if len(input.Password) < 8 {
		return AuthResult{}, validationErr("password must be at least 8 characters", nil)
	}
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	companyName := strings.TrimSpace(input.CompanyName)
	if firstName == "" || lastName == "" {
		return AuthResult{}, validationErr("firstName and lastName are required", nil)
	}
	if companyName == "" {
		return AuthResult{}, validationErr("companyName is required", nil)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	company := store.Company{ID: util.NewID("comp"), Name: companyName}
	owner := store.User{
		ID:           util.NewID("user"),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         store.RoleOwner,
		CompanyID:    company.ID,
	}

	created, _, err := s.store.CreateCompanyWithOwner(ctx, company, owner)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return AuthResult{}, conflictErr("a user with this email already exists")
		}
		return AuthResult{}, err
	}
	return s.authResult(created)
}

// Login verifies credentials. Unknown email and wrong password produce the
// same error so the response does not leak which one failed.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return AuthResult{}, unauthorized("invalid email or password")
		}
		return AuthResult{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		return AuthResult{}, unauthorized("invalid email or password")
	}
	return s.authResult(user)
}

// Refresh re-issues an access token from a still-valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), refreshToken)
	if err != nil {
		return AuthResult{}, unauthorized("invalid refresh token")
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if isNotFound(err) {
			return AuthResult{}, unauthorized("invalid refresh token")
		}
		return AuthResult{}, err
	}
	return s.authResult(user)
}

func (s *Service) CurrentUser(ctx context.Context, principal Principal) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, principal.UserID)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

// PrincipalFromToken resolves the bearer token into a principal without a
// database round trip; the claims carry everything tenant checks need.
func (s *Service) PrincipalFromToken(token string) (Principal, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:    claims.Sub,
		Email:     claims.Email,
		CompanyID: claims.CompanyID,
		Role:      claims.Role,
	}, nil
}

func (s *Service) authResult(user store.User) (AuthResult, error) {
	access, err := s.issueToken(user, s.cfg.AccessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := s.issueToken(user, s.cfg.RefreshTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: userView(user), AccessToken: access, RefreshToken: refresh}, nil
}
