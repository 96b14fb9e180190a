package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
)

var emailFolder = cases.Lower(language.Und)

// normalizeEmail trims and lower-cases an address so lookups and the
// unique index agree.
func normalizeEmail(s string) string {
	return emailFolder.String(strings.TrimSpace(s))
}

// UserCounts are the rows that block deleting a user.
type UserCounts struct {
	CreatedChecklists int64 `json:"createdChecklists"`
	RequestedReviews  int64 `json:"requestedReviews"`
}

// UserView is a user as the admin API shows it.
type UserView struct {
	domain.User
	Count UserCounts `json:"_count"`
}

// CreateUserInput is the body of user creation.
type CreateUserInput struct {
	Name     string      `json:"name"     validate:"required,min=1,max=100"`
	Email    string      `json:"email"    validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6,max=100"`
	Role     domain.Role `json:"role"     validate:"required,oneof=ADMINISTRATOR OCC_MANAGER SUPERVISOR"`
}

// UpdateUserInput is the body of a partial user update.
type UpdateUserInput struct {
	Name     *string      `json:"name"     validate:"omitempty,min=1,max=100"`
	Email    *string      `json:"email"    validate:"omitempty,email"`
	Password *string      `json:"password" validate:"omitempty,min=6,max=100"`
	Role     *domain.Role `json:"role"     validate:"omitempty,oneof=ADMINISTRATOR OCC_MANAGER SUPERVISOR"`
}

// UserService manages accounts: the admin API and the caller's own profile.
type UserService struct {
	DB         *gorm.DB
	BcryptCost int
}

func (s *UserService) view(ctx context.Context, u domain.User) (UserView, error) {
	t, r, err := repo.UserDependents(ctx, s.DB, u.ID)
	if err != nil {
		return UserView{}, err
	}
	return UserView{User: u, Count: UserCounts{CreatedChecklists: t, RequestedReviews: r}}, nil
}

// List returns every user with dependent counts, newest first.
func (s *UserService) List(ctx context.Context, p *domain.Principal) ([]UserView, error) {
	if err := rbac.Check(p, rbac.ManageUsers); err != nil {
		return nil, err
	}
	users, err := repo.ListUsers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		v, err := s.view(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns user id with dependent counts.
func (s *UserService) Get(ctx context.Context, p *domain.Principal, id string) (*UserView, error) {
	if err := rbac.Check(p, rbac.ManageUsers); err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, *u)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create adds an account.
func (s *UserService) Create(ctx context.Context, p *domain.Principal, in CreateUserInput) (*domain.User, error) {
	ctx, span := observability.StartSpan(ctx, "UserService.Create")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageUsers); err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	if err = validateStruct(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err = repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			err = ErrDuplicateEmail
		}
		return nil, err
	}
	return u, nil
}

// Update applies the set fields of in to user id. Callers cannot change
// their own role.
func (s *UserService) Update(ctx context.Context, p *domain.Principal, id string, in UpdateUserInput) (*domain.User, error) {
	ctx, span := observability.StartSpan(ctx, "UserService.Update", attribute.String("user.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageUsers); err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if err = validateStruct(in); err != nil {
		return nil, err
	}
	existing, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrUserNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if id == p.UserID && in.Role != nil && *in.Role != p.Role {
		err = ErrOwnRoleChange
		return nil, err
	}

	fields := map[string]any{}
	if in.Name != nil {
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email := *in.Email
		if email != existing.Email {
			taken, terr := repo.EmailTaken(ctx, s.DB, email, id)
			if terr != nil {
				err = terr
				return nil, err
			}
			if taken {
				err = ErrDuplicateEmail
				return nil, err
			}
		}
		fields["email"] = email
	}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if in.Password != nil && *in.Password != "" {
		hash, herr := auth.HashPassword(*in.Password, s.BcryptCost)
		if herr != nil {
			err = herr
			return nil, err
		}
		fields["password_hash"] = hash
	}
	if len(fields) > 0 {
		if err = repo.UpdateUser(ctx, s.DB, id, fields); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				err = ErrDuplicateEmail
			}
			return nil, err
		}
	}
	return repo.GetUser(ctx, s.DB, id)
}

// Delete removes user id. Callers cannot delete themselves, and users who
// created templates or requested reviews are kept.
func (s *UserService) Delete(ctx context.Context, p *domain.Principal, id string) error {
	ctx, span := observability.StartSpan(ctx, "UserService.Delete", attribute.String("user.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.ManageUsers); err != nil {
		return err
	}
	if id == p.UserID {
		err = ErrSelfDelete
		return err
	}
	if _, err = repo.GetUser(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = ErrUserNotFound
		}
		return err
	}
	t, r, err := repo.UserDependents(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if t > 0 || r > 0 {
		err = ErrUserHasDependents
		return err
	}
	if err = repo.DeleteUser(ctx, s.DB, id); errors.Is(err, repo.ErrNotFound) {
		err = ErrUserNotFound
	}
	return err
}

// Profile actions.
const (
	ActionUpdateProfile  = "updateProfile"
	ActionChangePassword = "changePassword"
)

// ProfileInput is the body of a profile update. Action selects which of the
// other fields apply.
type ProfileInput struct {
	Action          string `json:"action"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type profileFields struct {
	Name  string `json:"name"  validate:"required,min=1,max=100"`
	Email string `json:"email" validate:"required,email"`
}

type passwordFields struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6,max=100"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, p *domain.Principal) (*domain.User, error) {
	caller, err := requireSession(p)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, caller.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile runs in.Action for the caller. It returns the updated user
// for updateProfile and nil for changePassword.
func (s *UserService) UpdateProfile(ctx context.Context, p *domain.Principal, in ProfileInput) (*domain.User, error) {
	ctx, span := observability.StartSpan(ctx, "UserService.UpdateProfile", attribute.String("action", in.Action))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	caller, err := requireSession(p)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, caller.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrUserNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	switch in.Action {
	case ActionUpdateProfile:
		f := profileFields{Name: strings.TrimSpace(in.Name), Email: normalizeEmail(in.Email)}
		if err = validateStruct(f); err != nil {
			return nil, err
		}
		taken, terr := repo.EmailTaken(ctx, s.DB, f.Email, u.ID)
		if terr != nil {
			err = terr
			return nil, err
		}
		if taken {
			err = ErrDuplicateEmail
			return nil, err
		}
		if err = repo.UpdateUser(ctx, s.DB, u.ID, map[string]any{"name": f.Name, "email": f.Email}); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				err = ErrDuplicateEmail
			}
			return nil, err
		}
		return repo.GetUser(ctx, s.DB, u.ID)

	case ActionChangePassword:
		f := passwordFields{CurrentPassword: in.CurrentPassword, NewPassword: in.NewPassword, ConfirmPassword: in.ConfirmPassword}
		if err = validateStruct(f); err != nil {
			return nil, err
		}
		if !auth.CheckPassword(u.PasswordHash, f.CurrentPassword) {
			err = ErrWrongPassword
			return nil, err
		}
		hash, herr := auth.HashPassword(f.NewPassword, s.BcryptCost)
		if herr != nil {
			err = herr
			return nil, err
		}
		err = repo.UpdateUser(ctx, s.DB, u.ID, map[string]any{"password_hash": hash})
		return nil, err
	}

	err = ErrUnknownAction
	return nil, err
}
